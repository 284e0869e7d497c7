package ports

import (
	"context"

	"github.com/Apurer/go-commerce-saga/internal/domains/audit/domain"
)

// Store is an append-only audit log.
type Store interface {
	// Append inserts entry unless one with the same ID exists. It reports
	// whether a row was written.
	Append(ctx context.Context, entry domain.Entry) (bool, error)
	// List returns the newest entries first; limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]domain.Entry, error)
	// ListByTopic returns a topic's entries in recording order.
	ListByTopic(ctx context.Context, topic string) ([]domain.Entry, error)
}

// Queries exposes the audit log.
type Queries interface {
	List(ctx context.Context, limit int) ([]domain.Entry, error)
	ListByTopic(ctx context.Context, topic string) ([]domain.Entry, error)
}
