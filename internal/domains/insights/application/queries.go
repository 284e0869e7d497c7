package application

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Apurer/go-commerce-saga/internal/domains/insights/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/insights/ports"
)

var _ ports.Queries = (*QueryService)(nil)

// QueryService reads the insights projections.
type QueryService struct {
	forecasts ports.ForecastStore
	histories ports.HistoryStore
}

func NewQueryService(forecasts ports.ForecastStore, histories ports.HistoryStore) *QueryService {
	return &QueryService{forecasts: forecasts, histories: histories}
}

func (s *QueryService) Forecast(ctx context.Context, productID int64) (domain.Forecast, error) {
	rec, err := s.forecasts.Load(ctx, strconv.FormatInt(productID, 10))
	if err != nil {
		return domain.Forecast{}, err
	}
	// Events skipped before the product was seen leave a record without an id.
	if rec == nil || rec.Metadata.Deleted || rec.Entity.ProductID == 0 {
		return domain.Forecast{}, fmt.Errorf("%w: product %d", ports.ErrNotFound, productID)
	}
	forecast := rec.Entity.Clone()
	if forecast.Observations == nil {
		forecast.Observations = []domain.Observation{}
	}
	return forecast, nil
}

// Recommendations scores every other owner's history against ownerID's. An
// owner with no paid orders gets an empty list.
func (s *QueryService) Recommendations(ctx context.Context, ownerID string, limit int) (domain.Recommendations, error) {
	owner := domain.PurchaseHistory{OwnerID: ownerID}
	rec, err := s.histories.Load(ctx, ownerID)
	if err != nil {
		return domain.Recommendations{}, err
	}
	if rec != nil && !rec.Metadata.Deleted {
		owner = rec.Entity
	}
	records, err := s.histories.ListLive(ctx)
	if err != nil {
		return domain.Recommendations{}, err
	}
	others := make([]domain.PurchaseHistory, 0, len(records))
	for _, r := range records {
		others = append(others, r.Entity)
	}
	return domain.Recommend(owner, others, limit), nil
}
