package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/application"
	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	orderactivities "github.com/Apurer/go-commerce-saga/internal/platform/temporal/activities/orders"
)

type fakeService struct {
	errs  []error
	calls int
}

func (f *fakeService) CreateOrder(_ context.Context, input ordertypes.CreateOrderInput) (*domain.Order, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &domain.Order{ID: 42, OwnerID: input.OwnerID, Status: domain.StatusCommitted}, nil
}

func (f *fakeService) Checkout(context.Context, ordertypes.CheckoutInput) (*domain.Order, error) {
	return nil, nil
}

func (f *fakeService) RequestRefund(context.Context, ordertypes.RefundInput) (*domain.Order, error) {
	return nil, nil
}

func (f *fakeService) GetOrder(context.Context, int64) (*domain.Order, error) { return nil, nil }

func (f *fakeService) ListOrders(context.Context, ordertypes.ListOrdersInput) ([]*domain.Order, error) {
	return nil, nil
}

type OrderCreationWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env     *testsuite.TestWorkflowEnvironment
	service *fakeService
}

func (s *OrderCreationWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.service = &fakeService{}
	acts := orderactivities.NewActivities(s.service)
	s.env.RegisterWorkflowWithOptions(OrderCreationWorkflow, workflow.RegisterOptions{Name: OrderCreationWorkflowName})
	s.env.RegisterActivityWithOptions(acts.CreateOrder, activity.RegisterOptions{Name: orderactivities.CreateOrderActivityName})
}

func (s *OrderCreationWorkflowSuite) input() OrderCreationWorkflowInput {
	return OrderCreationWorkflowInput{Command: ordertypes.CreateOrderInput{
		OwnerID:        "alice",
		Items:          []ordertypes.ItemInput{{ProductID: 1, Quantity: 2}},
		IdempotencyKey: "k-1",
	}}
}

func (s *OrderCreationWorkflowSuite) TestCompletes() {
	s.env.ExecuteWorkflow(OrderCreationWorkflowName, s.input())

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())
	var order domain.Order
	require.NoError(s.T(), s.env.GetWorkflowResult(&order))
	require.Equal(s.T(), int64(42), order.ID)
	require.Equal(s.T(), 1, s.service.calls)
}

func (s *OrderCreationWorkflowSuite) TestRetriesUnavailable() {
	s.service.errs = []error{
		fmt.Errorf("%w: inventory down", application.ErrUnavailable),
		fmt.Errorf("%w: inventory down", application.ErrUnavailable),
	}
	s.env.ExecuteWorkflow(OrderCreationWorkflowName, s.input())

	require.NoError(s.T(), s.env.GetWorkflowError())
	require.Equal(s.T(), 3, s.service.calls)
}

func (s *OrderCreationWorkflowSuite) TestStopsAfterThreeAttempts() {
	down := fmt.Errorf("%w: inventory down", application.ErrUnavailable)
	s.service.errs = []error{down, down, down, down}
	s.env.ExecuteWorkflow(OrderCreationWorkflowName, s.input())

	err := s.env.GetWorkflowError()
	require.Error(s.T(), err)
	require.Equal(s.T(), 3, s.service.calls)
	require.True(s.T(), errors.Is(orderactivities.DecodeError(err), application.ErrUnavailable))
}

func (s *OrderCreationWorkflowSuite) TestDoesNotRetryInsufficientStock() {
	s.service.errs = []error{fmt.Errorf("%w: product 1", application.ErrInsufficientStock)}
	s.env.ExecuteWorkflow(OrderCreationWorkflowName, s.input())

	err := s.env.GetWorkflowError()
	require.Error(s.T(), err)
	require.Equal(s.T(), 1, s.service.calls)
	require.True(s.T(), errors.Is(orderactivities.DecodeError(err), application.ErrInsufficientStock))
}

func TestOrderCreationWorkflowSuite(t *testing.T) {
	suite.Run(t, new(OrderCreationWorkflowSuite))
}
