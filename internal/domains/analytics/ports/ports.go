package ports

import (
	"context"

	"github.com/Apurer/go-commerce-saga/internal/domains/analytics/domain"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

// OrderStore holds order summaries keyed by order id.
type OrderStore = projection.ListStore[domain.OrderSummary]

// ProductStore holds product summaries keyed by product id.
type ProductStore = projection.ListStore[domain.ProductSummary]

// Projector applies bus events to the analytics read model.
type Projector interface {
	Topics() []string
	Handle(ctx context.Context, env eventbus.Envelope) error
}

// Queries exposes the analytics read model.
type Queries interface {
	ListOrderSummaries(ctx context.Context) ([]domain.OrderSummary, error)
	ListProductSummaries(ctx context.Context) ([]domain.ProductSummary, error)
	Revenue(ctx context.Context) (domain.RevenueReport, error)
}
