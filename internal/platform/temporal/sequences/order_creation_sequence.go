package sequences

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	orderactivities "github.com/Apurer/go-commerce-saga/internal/platform/temporal/activities/orders"
)

// CreateOrderActivityOptions bounds the saga activity: three attempts with
// exponential backoff, and no retries for caller errors.
func CreateOrderActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        10 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: orderactivities.NonRetryableErrorTypes(),
		},
	}
}

// RunOrderCreationSequence executes the activities that create an order.
func RunOrderCreationSequence(ctx workflow.Context, input ordertypes.CreateOrderInput) (*domain.Order, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("order creation sequence started", "ownerId", input.OwnerID, "items", len(input.Items))

	var order domain.Order
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, CreateOrderActivityOptions()),
		orderactivities.CreateOrderActivityName,
		input,
	).Get(ctx, &order)
	if err != nil {
		logger.Error("order creation sequence failed", "ownerId", input.OwnerID, "error", err)
		return nil, err
	}
	logger.Info("order creation sequence completed", "orderId", order.ID)
	return &order, nil
}
