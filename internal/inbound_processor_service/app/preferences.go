package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// PreferencesSource yields the snapshot a pipeline invocation runs with.
type PreferencesSource interface {
	Preferences(ctx context.Context) domain.Preferences
}

// PreferencesStore holds the current preferences. Each read returns a copy, so
// an update never changes an invocation already in flight.
type PreferencesStore struct {
	current atomic.Pointer[domain.Preferences]
}

func NewPreferencesStore(initial domain.Preferences) (*PreferencesStore, error) {
	s := &PreferencesStore{}
	if err := s.Update(initial); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PreferencesStore) Preferences(_ context.Context) domain.Preferences {
	if p := s.current.Load(); p != nil {
		return *p
	}
	return domain.Preferences{BlockingManager: domain.BlockingManagerQKSMS}
}

// Update replaces the preferences. An unknown blocking manager is rejected.
func (s *PreferencesStore) Update(prefs domain.Preferences) error {
	if !prefs.BlockingManager.Valid() {
		return fmt.Errorf("unknown blocking manager %q", prefs.BlockingManager)
	}
	s.current.Store(&prefs)
	return nil
}
