package ports

import (
	"context"

	"github.com/Apurer/go-commerce-saga/internal/domains/search/domain"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

// Store holds search entries keyed by product id.
type Store interface {
	projection.Store[domain.Entry]
	// Search returns live entries matching q, ordered by product id.
	Search(ctx context.Context, q domain.Query) ([]domain.Entry, error)
}

type Queries interface {
	Search(ctx context.Context, q domain.Query) ([]domain.Entry, error)
}
