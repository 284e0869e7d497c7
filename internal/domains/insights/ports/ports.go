package ports

import (
	"context"
	"errors"

	"github.com/Apurer/go-commerce-saga/internal/domains/insights/domain"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

var ErrNotFound = errors.New("forecast not found")

// ForecastStore holds demand forecasts keyed by product id.
type ForecastStore = projection.ListStore[domain.Forecast]

// HistoryStore holds purchase histories keyed by owner id.
type HistoryStore = projection.ListStore[domain.PurchaseHistory]

// Projector applies bus events to the insights read model.
type Projector interface {
	Topics() []string
	Handle(ctx context.Context, env eventbus.Envelope) error
}

// Queries exposes demand forecasts and co-purchase recommendations.
type Queries interface {
	Forecast(ctx context.Context, productID int64) (domain.Forecast, error)
	Recommendations(ctx context.Context, ownerID string, limit int) (domain.Recommendations, error)
}
