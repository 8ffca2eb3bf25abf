package memory

import (
	"context"
	"slices"
	"sync"

	"subtrack/internal/core"
	"subtrack/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps the collection in process memory. Used for local runs and tests.
type Store struct {
	mu    sync.Mutex
	items []core.Subscription
	saves int
}

func New(seed ...core.Subscription) *Store {
	return &Store{items: slices.Clone(seed)}
}

// LoadAll returns a copy of the stored collection.
func (s *Store) LoadAll(_ context.Context) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items), nil
}

// SaveAll replaces the stored collection with a copy of subs.
func (s *Store) SaveAll(_ context.Context, subs []core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.Clone(subs)
	s.saves++
	return nil
}

// Saves reports how many times SaveAll has been called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
