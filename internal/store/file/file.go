// Package file persists the subscription collection as a JSON array in a
// single file.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"subtrack/internal/core"
	"subtrack/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a store backed by path. The file is created on first save.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// LoadAll reads the collection. A missing or empty file is an empty
// collection. A file that is not a JSON array returns an empty collection
// together with store.ErrMalformed. Individual records that fail to decode are
// skipped.
func (s *Store) LoadAll(ctx context.Context) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []core.Subscription{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []core.Subscription{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return []core.Subscription{}, fmt.Errorf("%w: %s: %w", store.ErrMalformed, s.path, err)
	}

	subs := make([]core.Subscription, 0, len(raw))
	for i, r := range raw {
		var sub core.Subscription
		if err := json.Unmarshal(r, &sub); err != nil {
			slog.WarnContext(ctx, "Skipping unreadable subscription record",
				"path", s.path,
				"index", i,
				"error", err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// SaveAll writes the collection through a temp file and rename, so readers
// never see a partial file.
func (s *Store) SaveAll(ctx context.Context, subs []core.Subscription) error {
	if subs == nil {
		subs = []core.Subscription{}
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode subscriptions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	slog.DebugContext(ctx, "Subscriptions saved", "path", s.path, "count", len(subs))
	return nil
}
