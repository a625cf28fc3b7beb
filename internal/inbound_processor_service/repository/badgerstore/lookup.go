package badgerstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

type storedRule struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// BlockingPolicy reads rule:{address} entries. Addresses without a rule
// resolve to domain.NoAction.
type BlockingPolicy struct {
	store  *Store
	logger *slog.Logger
}

func NewBlockingPolicy(store *Store, logger *slog.Logger) *BlockingPolicy {
	return &BlockingPolicy{store: store, logger: logger.With("component", "blocking_policy_badger")}
}

func (p *BlockingPolicy) GetAction(ctx context.Context, address string) (domain.BlockingAction, error) {
	var (
		rule  storedRule
		found bool
	)
	err := p.store.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, ruleKey(domain.NormalizeAddress(address)), &rule)
		return err
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Error checking blocking rules", "address", address, "error", err)
		return nil, fmt.Errorf("checking blocking rules: %w", err)
	}
	if !found {
		return domain.NoAction{}, nil
	}
	return domain.ParseBlockingAction(rule.Action, rule.Reason)
}

func (p *BlockingPolicy) SetRule(ctx context.Context, address string, action domain.BlockingAction) error {
	rule := storedRule{Action: action.String(), Reason: domain.ReasonOf(action)}
	err := p.store.update(func(txn *badger.Txn) error {
		return setJSON(txn, ruleKey(domain.NormalizeAddress(address)), rule)
	})
	if err != nil {
		return fmt.Errorf("saving blocking rule: %w", err)
	}
	return nil
}

func (p *BlockingPolicy) RemoveRule(ctx context.Context, address string) error {
	err := p.store.update(func(txn *badger.Txn) error {
		return txn.Delete(ruleKey(domain.NormalizeAddress(address)))
	})
	if err != nil {
		return fmt.Errorf("removing blocking rule: %w", err)
	}
	return nil
}

// ContactDirectory keeps one contact per normalized number; adding the same
// number again replaces the entry.
type ContactDirectory struct {
	store  *Store
	logger *slog.Logger
}

func NewContactDirectory(store *Store, logger *slog.Logger) *ContactDirectory {
	return &ContactDirectory{store: store, logger: logger.With("component", "contact_directory_badger")}
}

func (d *ContactDirectory) FindContact(ctx context.Context, address string) (*domain.Contact, error) {
	var (
		c     domain.Contact
		found bool
	)
	err := d.store.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, contactKey(domain.NormalizeAddress(address)), &c)
		return err
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Error finding contact", "address", address, "error", err)
		return nil, fmt.Errorf("finding contact: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

func (d *ContactDirectory) AddContact(ctx context.Context, number, displayName string) (*domain.Contact, error) {
	c := domain.Contact{ID: uuid.New(), Number: number, DisplayName: displayName}
	err := d.store.update(func(txn *badger.Txn) error {
		return setJSON(txn, contactKey(domain.NormalizeAddress(number)), c)
	})
	if err != nil {
		return nil, fmt.Errorf("adding contact: %w", err)
	}
	return &c, nil
}
