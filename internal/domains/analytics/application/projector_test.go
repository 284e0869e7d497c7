package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/go-commerce-saga/internal/contracts"
	"github.com/Apurer/go-commerce-saga/internal/domains/analytics/domain"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

type fixture struct {
	orders    *projection.MemoryStore[domain.OrderSummary]
	products  *projection.MemoryStore[domain.ProductSummary]
	projector *Projector
	queries   *QueryService
}

func newFixture() fixture {
	orders := projection.NewMemoryStore[domain.OrderSummary](nil)
	products := projection.NewMemoryStore(domain.ProductSummary.Clone)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return fixture{
		orders:    orders,
		products:  products,
		projector: NewProjector(orders, products, WithClock(func() time.Time { return now })),
		queries:   NewQueryService(orders, products),
	}
}

func envelope(t *testing.T, topic, eventType, originKey string, seq int64, payload any) eventbus.Envelope {
	t.Helper()
	env, err := eventbus.NewEnvelope(topic, eventType, originKey, seq, payload)
	require.NoError(t, err)
	return env
}

func orderEvent(t *testing.T, eventType string, seq int64, paymentStatus, refundStatus string) eventbus.Envelope {
	return envelope(t, eventbus.TopicOrders, eventType, "order:1", seq, contracts.OrderPayload{
		OrderID:       1,
		OwnerID:       "alice",
		Total:         90,
		Status:        "fulfilled",
		PaymentStatus: paymentStatus,
		RefundStatus:  refundStatus,
		Items:         []contracts.OrderItem{{ProductID: 1, Quantity: 2, UnitPrice: 50, Discount: 5}},
	})
}

func TestProjector_OrderPaidReplayIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.projector.Handle(ctx, orderEvent(t, eventbus.OrderCreated, 1, "none", "none")))
	paid := orderEvent(t, eventbus.OrderPaid, 2, "paid", "none")
	require.NoError(t, f.projector.Handle(ctx, paid))
	once, err := f.orders.Load(ctx, "1")
	require.NoError(t, err)

	require.NoError(t, f.projector.Handle(ctx, paid))
	twice, err := f.orders.Load(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, once, twice)
	require.Equal(t, "paid", twice.Entity.PaymentStatus)
	require.Equal(t, 2, twice.Entity.ItemCount)
	require.True(t, twice.Entity.Total.Equal(decimal.NewFromInt(90)))
}

func TestProjector_StaleOrderEventIsIgnored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.projector.Handle(ctx, orderEvent(t, eventbus.OrderPaid, 2, "paid", "none")))
	require.NoError(t, f.projector.Handle(ctx, orderEvent(t, eventbus.OrderCreated, 1, "none", "none")))

	summaries, err := f.queries.ListOrderSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "paid", summaries[0].PaymentStatus)
}

func TestProjector_PromotionDeletionClearsActivePromotions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.projector.Handle(ctx, envelope(t, eventbus.TopicProducts, eventbus.ProductCreated, "product:1", 1, contracts.ProductPayload{
		ID: 1, Name: "Espresso Machine", Price: 50, Stock: 100,
		Category: &contracts.Category{ID: 1, Name: "Kitchen"},
		Tags:     []contracts.Tag{{ID: 1, Name: "coffee"}},
	})))
	require.NoError(t, f.projector.Handle(ctx, envelope(t, eventbus.TopicPromotions, eventbus.PromotionCreated, "product-promotions:1", 1,
		contracts.NewPromotionPayload(7, 1, []contracts.PromotionRef{{ID: 7, Name: "Spring", DiscountType: "percentage", DiscountValue: 10}}))))

	products, err := f.queries.ListProductSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Len(t, products[0].ActivePromotions, 1)
	require.Equal(t, "Kitchen", products[0].Category)
	require.Equal(t, []string{"coffee"}, products[0].Tags)

	require.NoError(t, f.projector.Handle(ctx, envelope(t, eventbus.TopicPromotions, eventbus.PromotionDeleted, "product-promotions:1", 2,
		contracts.NewPromotionPayload(7, 1, nil))))

	products, err = f.queries.ListProductSummaries(ctx)
	require.NoError(t, err)
	require.Empty(t, products[0].ActivePromotions)
	require.Equal(t, "Espresso Machine", products[0].Name)
}

func TestProjector_PromotionWithoutListIsPermanentFailure(t *testing.T) {
	f := newFixture()
	env := envelope(t, eventbus.TopicPromotions, eventbus.PromotionDeleted, "product-promotions:1", 1, map[string]any{"id": 7, "product_id": 1})

	err := f.projector.Handle(context.Background(), env)
	require.ErrorIs(t, err, ErrMissingPromotions)
	require.True(t, eventbus.IsPermanent(err))
}

func TestProjector_StockUpdateKeepsPromotions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.projector.Handle(ctx, envelope(t, eventbus.TopicPromotions, eventbus.PromotionCreated, "product-promotions:2", 1,
		contracts.NewPromotionPayload(3, 2, []contracts.PromotionRef{{ID: 3, DiscountType: "fixed", DiscountValue: 5}}))))
	products, err := f.queries.ListProductSummaries(ctx)
	require.NoError(t, err)
	require.Empty(t, products, "promotion-only stubs are hidden")

	require.NoError(t, f.projector.Handle(ctx, envelope(t, eventbus.TopicProducts, eventbus.ProductStockUpdated, "product:2", 4, contracts.ProductPayload{
		ID: 2, Name: "Burr Grinder", Price: 30, Stock: 38,
	})))

	products, err = f.queries.ListProductSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, 38, products[0].Stock)
	require.Len(t, products[0].ActivePromotions, 1)
}

func TestProjector_ProductDeletedTombstones(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.projector.Handle(ctx, envelope(t, eventbus.TopicProducts, eventbus.ProductCreated, "product:3", 1, contracts.ProductPayload{ID: 3, Name: "Desk Lamp", Price: 24.99, Stock: 10})))
	require.NoError(t, f.projector.Handle(ctx, envelope(t, eventbus.TopicProducts, eventbus.ProductDeleted, "product:3", 2, contracts.ProductPayload{ID: 3})))
	require.NoError(t, f.projector.Handle(ctx, envelope(t, eventbus.TopicProducts, eventbus.ProductUpdated, "product:3", 1, contracts.ProductPayload{ID: 3, Name: "Desk Lamp", Price: 19.99})))

	products, err := f.queries.ListProductSummaries(ctx)
	require.NoError(t, err)
	require.Empty(t, products)
}

func TestQueryService_Revenue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.projector.Handle(ctx, orderEvent(t, eventbus.OrderPaid, 2, "paid", "none")))
	require.NoError(t, f.projector.Handle(ctx, orderEvent(t, eventbus.OrderRefunded, 4, "paid", "refunded")))

	report, err := f.queries.Revenue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.PaidOrders)
	require.Equal(t, 1, report.RefundedOrders)
	require.True(t, report.NetRevenue.IsZero())
}
