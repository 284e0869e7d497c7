package orders

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"

	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	orderports "github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
)

// CreateOrderActivityName runs the order creation saga once.
const CreateOrderActivityName = "orders.activities.CreateOrder"

// Activities groups activities that operate on the orders bounded context.
type Activities struct {
	service orderports.Service
}

// NewActivities wires the order service into the Temporal activities bundle.
func NewActivities(service orderports.Service) *Activities {
	return &Activities{service: service}
}

// CreateOrder executes the saga. Retries are safe because the workflow
// always carries an idempotency key.
func (a *Activities) CreateOrder(ctx context.Context, input ordertypes.CreateOrderInput) (*domain.Order, error) {
	logger := activity.GetLogger(ctx)
	if a == nil || a.service == nil {
		logger.Error("create order activity not initialized", "ownerId", input.OwnerID)
		return nil, errors.New("create order activity not initialized")
	}
	info := activity.GetInfo(ctx)
	logger.Info("CreateOrder activity started", "ownerId", input.OwnerID, "attempt", info.Attempt)
	order, err := a.service.CreateOrder(ctx, input)
	if err != nil {
		logger.Error("CreateOrder activity failed", "ownerId", input.OwnerID, "error", err)
		return nil, EncodeError(err)
	}
	logger.Info("CreateOrder activity completed", "orderId", order.ID, "status", string(order.Status))
	return order, nil
}
