// Package outbox stores events next to the state change that produced them and
// forwards them to the bus afterwards.
package outbox

import (
	"context"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

// Record is one outbox row. Position orders records globally.
type Record struct {
	Position    int64
	Envelope    eventbus.Envelope
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Store is the relay's view of an outbox. Writers append through their own
// transactional path.
type Store interface {
	// FetchPending returns unpublished records ordered by position.
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, position int64, at time.Time) error
	MarkFailed(ctx context.Context, position int64, reason string) error
}
