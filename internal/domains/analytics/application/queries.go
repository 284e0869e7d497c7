package application

import (
	"cmp"
	"context"
	"slices"

	"github.com/Apurer/go-commerce-saga/internal/domains/analytics/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/analytics/ports"
)

var _ ports.Queries = (*QueryService)(nil)

// QueryService reads the analytics projections.
type QueryService struct {
	orders   ports.OrderStore
	products ports.ProductStore
}

func NewQueryService(orders ports.OrderStore, products ports.ProductStore) *QueryService {
	return &QueryService{orders: orders, products: products}
}

func (s *QueryService) ListOrderSummaries(ctx context.Context) ([]domain.OrderSummary, error) {
	records, err := s.orders.ListLive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Entity)
	}
	slices.SortFunc(out, func(a, b domain.OrderSummary) int { return cmp.Compare(a.OrderID, b.OrderID) })
	return out, nil
}

// ListProductSummaries skips stubs created by promotion events for products
// whose own snapshot has not arrived yet.
func (s *QueryService) ListProductSummaries(ctx context.Context) ([]domain.ProductSummary, error) {
	records, err := s.products.ListLive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProductSummary, 0, len(records))
	for _, rec := range records {
		if rec.Entity.Name == "" {
			continue
		}
		out = append(out, rec.Entity)
	}
	slices.SortFunc(out, func(a, b domain.ProductSummary) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out, nil
}

func (s *QueryService) Revenue(ctx context.Context) (domain.RevenueReport, error) {
	orders, err := s.ListOrderSummaries(ctx)
	if err != nil {
		return domain.RevenueReport{}, err
	}
	return domain.BuildRevenueReport(orders), nil
}
