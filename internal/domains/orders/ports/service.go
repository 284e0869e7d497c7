package ports

import (
	"context"

	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
)

// Service defines the order saga use cases exposed to adapters (inbound/driving port).
type Service interface {
	CreateOrder(ctx context.Context, input ordertypes.CreateOrderInput) (*domain.Order, error)
	Checkout(ctx context.Context, input ordertypes.CheckoutInput) (*domain.Order, error)
	RequestRefund(ctx context.Context, input ordertypes.RefundInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, input ordertypes.ListOrdersInput) ([]*domain.Order, error)
}
