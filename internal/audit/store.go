// Package audit persists entity mutations for after-the-fact inspection.
package audit

import (
	"context"
	"time"
)

// Event is one recorded mutation.
type Event struct {
	ID         string
	Entity     string
	EntityID   uint32
	Action     string
	Payload    []byte
	RecordedAt time.Time
}

// Store defines the interface for persisting and retrieving mutation events.
type Store interface {
	// Record appends a mutation event.
	Record(ctx context.Context, e Event) error

	// ByEntity retrieves the most recent events for an entity kind, newest
	// first. An empty entity matches all kinds.
	ByEntity(ctx context.Context, entity string, limit int) ([]Event, error)

	// Range retrieves events recorded within [start, end], oldest first.
	Range(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
