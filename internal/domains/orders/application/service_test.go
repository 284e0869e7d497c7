package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	ordermemory "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/memory"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/payment"
	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
	"github.com/Apurer/go-commerce-saga/internal/platform/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}

// scriptedInventory wraps the memory catalog with failure injection.
type scriptedInventory struct {
	*ordermemory.Catalog

	mu          sync.Mutex
	getFailures int
	adjustCalls int
	adjust      func(ctx context.Context, id int64, delta int) error
}

func (s *scriptedInventory) GetProduct(ctx context.Context, id int64) (ports.Product, error) {
	s.mu.Lock()
	if s.getFailures > 0 {
		s.getFailures--
		s.mu.Unlock()
		return ports.Product{}, ports.ErrUnavailable
	}
	s.mu.Unlock()
	return s.Catalog.GetProduct(ctx, id)
}

func (s *scriptedInventory) AdjustStock(ctx context.Context, id int64, delta int, key string) error {
	s.mu.Lock()
	s.adjustCalls++
	hook := s.adjust
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, id, delta); err != nil {
			return err
		}
	}
	return s.Catalog.AdjustStock(ctx, id, delta, key)
}

func (s *scriptedInventory) setAdjust(fn func(ctx context.Context, id int64, delta int) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjust = fn
}

type fixture struct {
	svc       *Service
	repo      *ordermemory.Repository
	catalog   *ordermemory.Catalog
	inventory *scriptedInventory
	gaps      *ordermemory.ReconciliationLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog := ordermemory.NewCatalog(nil)
	require.NoError(t, catalog.Seed(context.Background()))
	repo := ordermemory.NewRepository(outbox.NewLog())
	inventory := &scriptedInventory{Catalog: catalog}
	gaps := ordermemory.NewReconciliationLog()
	svc := NewService(repo, inventory, catalog, payment.NewSimulator(),
		WithRetryPolicy(fastRetry),
		WithReconciliationSink(gaps),
		WithIdempotencyStore(ordermemory.NewIdempotencyStore()),
	)
	return &fixture{svc: svc, repo: repo, catalog: catalog, inventory: inventory, gaps: gaps}
}

func (f *fixture) orderEvents() []eventbus.Envelope {
	var out []eventbus.Envelope
	for _, rec := range f.repo.Outbox().All() {
		if rec.Envelope.Topic == eventbus.TopicOrders {
			out = append(out, rec.Envelope)
		}
	}
	return out
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func createInput(items ...ordertypes.ItemInput) ordertypes.CreateOrderInput {
	return ordertypes.CreateOrderInput{OwnerID: "alice", Items: items}
}

func TestCreateOrder_AppliesPromotionAndCheckoutFulfils(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, createInput(ordertypes.ItemInput{ProductID: 1, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, domain.StatusCommitted, order.Status)
	requireMoney(t, "90", order.Total)
	requireMoney(t, "5", order.Items[0].Discount)
	require.Equal(t, int64(1), order.Items[0].PromotionID)
	require.True(t, order.Items[0].StockDecremented)
	require.Equal(t, 98, f.catalog.Stock(1))

	events := f.orderEvents()
	require.Len(t, events, 1)
	require.Equal(t, eventbus.OrderCreated, events[0].EventType)
	require.Equal(t, "order:1", events[0].OriginKey)
	require.Equal(t, order.Version, events[0].OriginSequence)

	paid, err := f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: order.ID, PaymentMethod: "card", Token: "tok_visa"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusFulfilled, paid.Status)
	require.Equal(t, domain.PaymentPaid, paid.PaymentStatus)

	events = f.orderEvents()
	require.Len(t, events, 2)
	require.Equal(t, eventbus.OrderPaid, events[1].EventType)
	require.Greater(t, events[1].OriginSequence, events[0].OriginSequence)
}

func TestCreateOrder_LowestPromotionIDWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.catalog.PutPromotion(ctx, ordermemory.CatalogPromotion{ID: 5, ProductID: 2, Type: domain.DiscountFixed, Value: decimal.NewFromInt(20), Active: true}))
	require.NoError(t, f.catalog.PutPromotion(ctx, ordermemory.CatalogPromotion{ID: 2, ProductID: 2, Type: domain.DiscountFixed, Value: decimal.NewFromInt(5), Active: true}))
	require.NoError(t, f.catalog.PutPromotion(ctx, ordermemory.CatalogPromotion{ID: 9, ProductID: 3, Type: domain.DiscountFixed, Value: decimal.NewFromInt(100), Active: true}))

	order, err := f.svc.CreateOrder(ctx, createInput(
		ordertypes.ItemInput{ProductID: 2, Quantity: 1},
		ordertypes.ItemInput{ProductID: 3, Quantity: 2},
	))
	require.NoError(t, err)
	require.Equal(t, int64(2), order.Items[0].PromotionID)
	requireMoney(t, "25", order.Items[0].NetUnitPrice())
	requireMoney(t, "0", order.Items[1].NetUnitPrice())
	requireMoney(t, "25", order.Total)
}

func TestCreateOrder_InsufficientStockRejectsWholeRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, createInput(
		ordertypes.ItemInput{ProductID: 1, Quantity: 1},
		ordertypes.ItemInput{ProductID: 3, Quantity: 6},
		ordertypes.ItemInput{ProductID: 3, Quantity: 5},
	))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Zero(t, f.inventory.adjustCalls)
	require.Equal(t, 100, f.catalog.Stock(1))

	orders, err := f.svc.ListOrders(ctx, ordertypes.ListOrdersInput{})
	require.NoError(t, err)
	require.Empty(t, orders)
	require.Empty(t, f.orderEvents())
}

func TestCreateOrder_ValidationAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, ordertypes.CreateOrderInput{Items: []ordertypes.ItemInput{{ProductID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateOrder(ctx, createInput())
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateOrder(ctx, createInput(ordertypes.ItemInput{ProductID: 1, Quantity: 0}))
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateOrder(ctx, createInput(ordertypes.ItemInput{ProductID: 404, Quantity: 1}))
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateOrder_RetriesTransientLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.inventory.getFailures = 2
	_, err := f.svc.CreateOrder(ctx, createInput(ordertypes.ItemInput{ProductID: 2, Quantity: 1}))
	require.NoError(t, err)

	f.inventory.getFailures = 3
	_, err = f.svc.CreateOrder(ctx, createInput(ordertypes.ItemInput{ProductID: 2, Quantity: 1}))
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, 39, f.catalog.Stock(2))
}

func TestCreateOrder_DecrementFailureCompensates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.inventory.setAdjust(func(_ context.Context, id int64, delta int) error {
		if id == 2 && delta < 0 {
			return ports.ErrStockConflict
		}
		return nil
	})

	_, err := f.svc.CreateOrder(ctx, createInput(
		ordertypes.ItemInput{ProductID: 1, Quantity: 2},
		ordertypes.ItemInput{ProductID: 2, Quantity: 3},
	))
	require.ErrorIs(t, err, ErrStockRejected)
	require.ErrorIs(t, err, ErrOrderAborted)
	require.Equal(t, 100, f.catalog.Stock(1))
	require.Equal(t, 40, f.catalog.Stock(2))
	require.Empty(t, f.gaps.Gaps())

	order, err := f.svc.GetOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, order.Status)
	require.True(t, order.Aborted())
	require.Equal(t, ReasonStockAdjustmentFailed, order.Reason)
	require.True(t, order.Items[0].StockRestored)
	require.False(t, order.Items[1].StockDecremented)

	events := f.orderEvents()
	require.Len(t, events, 1)
	require.Equal(t, eventbus.OrderCancelled, events[0].EventType)
	require.LessOrEqual(t, events[0].OriginSequence, order.Version)
}

func TestCreateOrder_CompensationFailureIsReconciliationGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.inventory.setAdjust(func(_ context.Context, id int64, delta int) error {
		switch {
		case id == 2 && delta < 0:
			return ports.ErrStockConflict
		case id == 1 && delta > 0:
			return ports.ErrStockConflict
		}
		return nil
	})

	_, err := f.svc.CreateOrder(ctx, createInput(
		ordertypes.ItemInput{ProductID: 1, Quantity: 2},
		ordertypes.ItemInput{ProductID: 2, Quantity: 1},
	))
	require.ErrorIs(t, err, ErrStockRejected)
	require.ErrorIs(t, err, ErrReconciliationGap)
	require.Equal(t, 98, f.catalog.Stock(1))

	gaps := f.gaps.Gaps()
	require.Len(t, gaps, 1)
	require.Equal(t, int64(1), gaps[0].ProductID)
	require.Equal(t, 2, gaps[0].Quantity)
	require.Equal(t, "compensate", gaps[0].Operation)
}

func TestCreateOrder_CancellationAfterDecrementCompensates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.inventory.setAdjust(func(_ context.Context, id int64, delta int) error {
		if id == 2 && delta < 0 {
			cancel()
			return context.Canceled
		}
		return nil
	})

	_, err := f.svc.CreateOrder(ctx, createInput(
		ordertypes.ItemInput{ProductID: 1, Quantity: 1},
		ordertypes.ItemInput{ProductID: 2, Quantity: 1},
	))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 100, f.catalog.Stock(1))

	order, err := f.svc.GetOrder(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, order.Status)
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := createInput(ordertypes.ItemInput{ProductID: 2, Quantity: 2})
	input.IdempotencyKey = "req-1"

	first, err := f.svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 38, f.catalog.Stock(2))

	input.Items[0].Quantity = 3
	_, err = f.svc.CreateOrder(ctx, input)
	require.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestCreateOrder_ReplayResumesInterruptedCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.inventory.setAdjust(func(_ context.Context, id int64, delta int) error {
		if id == 2 && delta < 0 {
			panic("worker lost")
		}
		return nil
	})
	input := createInput(
		ordertypes.ItemInput{ProductID: 1, Quantity: 1},
		ordertypes.ItemInput{ProductID: 2, Quantity: 1},
	)
	input.IdempotencyKey = "crash-1"

	require.Panics(t, func() { _, _ = f.svc.CreateOrder(ctx, input) })

	stranded, err := f.svc.GetOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCommitted, stranded.Status)
	require.False(t, stranded.StockSettled)
	require.True(t, stranded.Items[0].StockDecremented)
	require.False(t, stranded.Items[1].StockDecremented)
	require.Empty(t, f.orderEvents())

	_, err = f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: stranded.ID, PaymentMethod: "card", Token: "tok"})
	require.ErrorIs(t, err, ErrConflict, "checkout must wait for the stock to settle")

	f.inventory.setAdjust(nil)
	order, err := f.svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	require.Equal(t, stranded.ID, order.ID)
	require.Equal(t, domain.StatusCommitted, order.Status)
	require.True(t, order.StockSettled)
	require.True(t, order.Items[1].StockDecremented)
	require.Equal(t, 99, f.catalog.Stock(1))
	require.Equal(t, 39, f.catalog.Stock(2))

	events := f.orderEvents()
	require.Len(t, events, 1)
	require.Equal(t, eventbus.OrderCreated, events[0].EventType)
	require.Equal(t, order.Version, events[0].OriginSequence)

	again, err := f.svc.CreateOrder(ctx, input)
	require.NoError(t, err)
	require.Equal(t, order.Version, again.Version)
	require.Len(t, f.orderEvents(), 1)

	paid, err := f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: order.ID, PaymentMethod: "card", Token: "tok"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusFulfilled, paid.Status)
}

func TestCreateOrder_ReplayAfterAbortReportsAbort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.inventory.setAdjust(func(_ context.Context, id int64, delta int) error {
		if id == 2 && delta < 0 {
			return ports.ErrUnavailable
		}
		return nil
	})
	input := createInput(
		ordertypes.ItemInput{ProductID: 1, Quantity: 1},
		ordertypes.ItemInput{ProductID: 2, Quantity: 1},
	)
	input.IdempotencyKey = "flaky-1"

	_, err := f.svc.CreateOrder(ctx, input)
	require.ErrorIs(t, err, ErrOrderAborted)
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, 100, f.catalog.Stock(1))

	f.inventory.setAdjust(nil)
	_, err = f.svc.CreateOrder(ctx, input)
	require.ErrorIs(t, err, ErrOrderAborted)
	require.NotErrorIs(t, err, ErrUnavailable)
	require.Equal(t, 100, f.catalog.Stock(1))
	require.Equal(t, 40, f.catalog.Stock(2))

	orders, err := f.svc.ListOrders(ctx, ordertypes.ListOrdersInput{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.True(t, orders[0].Aborted())

	_, err = f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: orders[0].ID, PaymentMethod: "card", Token: "tok"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCheckout_DeclinedThenPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, createInput(ordertypes.ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	failed, err := f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: order.ID, PaymentMethod: "card", Token: "FailCard"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaymentFailed, failed.Status)
	require.Equal(t, domain.PaymentFailed, failed.PaymentStatus)
	require.Equal(t, 99, f.catalog.Stock(1), "a declined payment keeps the stock")

	_, err = f.svc.RequestRefund(ctx, ordertypes.RefundInput{OrderID: order.ID})
	require.ErrorIs(t, err, ErrInvalidState)

	paid, err := f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: order.ID, PaymentMethod: "card", Token: "tok_ok"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusFulfilled, paid.Status)

	_, err = f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: order.ID, PaymentMethod: "card", Token: "tok_ok"})
	require.ErrorIs(t, err, ErrAlreadyPaid)

	types := []string{}
	for _, env := range f.orderEvents() {
		types = append(types, env.EventType)
	}
	require.Equal(t, []string{eventbus.OrderCreated, eventbus.OrderPaymentFailed, eventbus.OrderPaid}, types)
}

func TestCheckout_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: 7, PaymentMethod: "card", Token: "tok"})
	require.ErrorIs(t, err, ErrOrderNotFound)
	_, err = f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: 7, PaymentMethod: "card"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckout_ConcurrentCallsChargeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, createInput(ordertypes.ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: order.ID, PaymentMethod: "card", Token: "tok"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyPaid)
	}
	require.Equal(t, 1, succeeded)
}

func TestRequestRefund_RestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, createInput(
		ordertypes.ItemInput{ProductID: 1, Quantity: 2},
		ordertypes.ItemInput{ProductID: 2, Quantity: 1},
	))
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: order.ID, PaymentMethod: "card", Token: "tok"})
	require.NoError(t, err)

	refunded, err := f.svc.RequestRefund(ctx, ordertypes.RefundInput{OrderID: order.ID, Reason: "damaged"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, refunded.Status)
	require.Equal(t, domain.RefundRefunded, refunded.RefundStatus)
	require.Equal(t, 100, f.catalog.Stock(1))
	require.Equal(t, 40, f.catalog.Stock(2))

	_, err = f.svc.RequestRefund(ctx, ordertypes.RefundInput{OrderID: order.ID})
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, 100, f.catalog.Stock(1))

	events := f.orderEvents()
	last := events[len(events)-1]
	require.Equal(t, eventbus.OrderRefunded, last.EventType)
	require.Equal(t, refunded.Version, last.OriginSequence)
}

func TestRequestRefund_ResumesAfterGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, createInput(
		ordertypes.ItemInput{ProductID: 1, Quantity: 1},
		ordertypes.ItemInput{ProductID: 2, Quantity: 1},
	))
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, ordertypes.CheckoutInput{OrderID: order.ID, PaymentMethod: "card", Token: "tok"})
	require.NoError(t, err)

	f.inventory.setAdjust(func(_ context.Context, id int64, delta int) error {
		if id == 2 && delta > 0 {
			return ports.ErrStockConflict
		}
		return nil
	})
	_, err = f.svc.RequestRefund(ctx, ordertypes.RefundInput{OrderID: order.ID})
	require.ErrorIs(t, err, ErrReconciliationGap)
	require.Len(t, f.gaps.Gaps(), 1)

	pending, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRefundRequested, pending.Status)
	require.True(t, pending.Items[0].StockRestored)
	require.Equal(t, 100, f.catalog.Stock(1))

	f.inventory.setAdjust(nil)
	done, err := f.svc.RequestRefund(ctx, ordertypes.RefundInput{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, done.Status)
	require.Equal(t, 100, f.catalog.Stock(1))
	require.Equal(t, 40, f.catalog.Stock(2))
}

func TestRequestRefund_RejectsUnpaidOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, createInput(ordertypes.ItemInput{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.RequestRefund(ctx, ordertypes.RefundInput{OrderID: order.ID})
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.RequestRefund(ctx, ordertypes.RefundInput{OrderID: 999})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestFingerprintCreateOrder_IgnoresKeyAndLineSplits(t *testing.T) {
	a, err := FingerprintCreateOrder(ordertypes.CreateOrderInput{OwnerID: "alice", IdempotencyKey: "1", Items: []ordertypes.ItemInput{{ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}})
	require.NoError(t, err)
	b, err := FingerprintCreateOrder(ordertypes.CreateOrderInput{OwnerID: "alice", IdempotencyKey: "2", Items: []ordertypes.ItemInput{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 2}}})
	require.NoError(t, err)
	require.Equal(t, a, b)
}
