package ports

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrStockConflict is a definitive rejection of a stock adjustment.
	ErrStockConflict = errors.New("stock adjustment rejected")
	// ErrUnavailable marks a transient failure of an external capability.
	ErrUnavailable = errors.New("external service unavailable")
)

// Product is the inventory view the saga needs to price a line.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	Stock int
}

// Inventory is the external stock capability.
type Inventory interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	// AdjustStock applies delta to the product stock. Calls sharing an
	// idempotency key are applied once.
	AdjustStock(ctx context.Context, id int64, delta int, idempotencyKey string) error
}

// Promotions lists the active promotions of a product.
type Promotions interface {
	ListActive(ctx context.Context, productID int64) ([]domain.Promotion, error)
}
