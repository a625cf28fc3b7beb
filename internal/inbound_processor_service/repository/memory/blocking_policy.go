package memory

import (
	"context"
	"sync"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// BlockingPolicy holds per-address rules in memory. Addresses without a rule
// resolve to domain.NoAction.
type BlockingPolicy struct {
	mu    sync.RWMutex
	rules map[string]domain.BlockingAction
}

func NewBlockingPolicy() *BlockingPolicy {
	return &BlockingPolicy{rules: make(map[string]domain.BlockingAction)}
}

func (p *BlockingPolicy) Set(address string, action domain.BlockingAction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[domain.NormalizeAddress(address)] = action
}

func (p *BlockingPolicy) Remove(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rules, domain.NormalizeAddress(address))
}

func (p *BlockingPolicy) GetAction(ctx context.Context, address string) (domain.BlockingAction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if action, ok := p.rules[domain.NormalizeAddress(address)]; ok {
		return action, nil
	}
	return domain.NoAction{}, nil
}

func (p *BlockingPolicy) SetRule(ctx context.Context, address string, action domain.BlockingAction) error {
	p.Set(address, action)
	return nil
}

func (p *BlockingPolicy) RemoveRule(ctx context.Context, address string) error {
	p.Remove(address)
	return nil
}
