package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

type ContactDirectory struct {
	mu       sync.RWMutex
	contacts map[string]domain.Contact
}

func NewContactDirectory() *ContactDirectory {
	return &ContactDirectory{contacts: make(map[string]domain.Contact)}
}

// Add registers number as a contact and returns the stored entry.
func (d *ContactDirectory) Add(number, displayName string) domain.Contact {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := domain.Contact{ID: uuid.New(), Number: number, DisplayName: displayName}
	d.contacts[domain.NormalizeAddress(number)] = c
	return c
}

func (d *ContactDirectory) FindContact(ctx context.Context, address string) (*domain.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[domain.NormalizeAddress(address)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (d *ContactDirectory) AddContact(ctx context.Context, number, displayName string) (*domain.Contact, error) {
	c := d.Add(number, displayName)
	return &c, nil
}
