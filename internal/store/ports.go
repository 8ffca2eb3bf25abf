// Package store defines the persistence boundary for the subscription
// collection. Adapters only need "load all" and "save all" semantics.
package store

import (
	"context"
	"errors"

	"subtrack/internal/core"
)

// ErrMalformed is returned by LoadAll when the persisted data cannot be parsed.
// Callers treat it as "no data".
var ErrMalformed = errors.New("malformed persisted data")

// Ports for outbound adapters.
type (
	Loader interface {
		// LoadAll returns the whole collection in its persisted order.
		LoadAll(ctx context.Context) ([]core.Subscription, error)
	}

	Saver interface {
		// SaveAll replaces the persisted collection with subs.
		SaveAll(ctx context.Context, subs []core.Subscription) error
	}

	Store interface {
		Loader
		Saver
	}
)
