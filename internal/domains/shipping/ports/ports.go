package ports

import (
	"context"
	"errors"

	"github.com/Apurer/go-commerce-saga/internal/domains/shipping/domain"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

var ErrNotFound = errors.New("shipment not found")

// Store holds shipments keyed by order id. Staged shipment events must be
// written to an outbox together with the record.
type Store = projection.ListStore[domain.Shipment]

type Queries interface {
	GetByOrder(ctx context.Context, orderID int64) (*domain.Shipment, error)
	List(ctx context.Context) ([]domain.Shipment, error)
	Advance(ctx context.Context, orderID int64, status domain.Status) (*domain.Shipment, error)
}
