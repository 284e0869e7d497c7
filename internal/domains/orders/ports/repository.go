package ports

import (
	"context"
	"errors"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrVersionConflict = errors.New("order version conflict")
)

// Repository persists orders together with their outgoing events.
type Repository interface {
	// Create assigns an id and stores the order at version 1.
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	// Update stores the order only when the persisted version equals
	// expectedVersion, bumps it by one and appends events to the outbox in
	// the same transaction. A mismatch returns ErrVersionConflict.
	Update(ctx context.Context, order *domain.Order, expectedVersion int64, events ...eventbus.Envelope) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	// List returns orders by ascending id; an empty ownerID lists all.
	List(ctx context.Context, ownerID string) ([]*domain.Order, error)
}
