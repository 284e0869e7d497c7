package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Apurer/go-commerce-saga/internal/contracts"
	"github.com/Apurer/go-commerce-saga/internal/domains/shipping/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/shipping/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

type fixture struct {
	svc    *Service
	outbox *outbox.Log
}

func newFixture() fixture {
	log := outbox.NewLog()
	store := projection.NewMemoryStore[domain.Shipment](nil).WithOutbox(log)
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("ship-%d", n)
	}
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(store,
		WithClock(func() time.Time { return now }),
		WithIDs(ids, func() string { return "TRK123456" }),
	)
	return fixture{svc: svc, outbox: log}
}

func orderEvent(t *testing.T, eventType string, orderID, seq int64) eventbus.Envelope {
	t.Helper()
	env, err := eventbus.NewEnvelope(eventbus.TopicOrders, eventType, eventbus.OriginKey(contracts.OriginOrder, orderID), seq, contracts.OrderPayload{OrderID: orderID})
	require.NoError(t, err)
	return env
}

func eventTypes(log *outbox.Log) []string {
	out := []string{}
	for _, rec := range log.All() {
		out = append(out, rec.Envelope.EventType)
	}
	return out
}

func TestService_OrderPaidCreatesShippedShipmentOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	paid := orderEvent(t, eventbus.OrderPaid, 1, 3)
	require.NoError(t, f.svc.Handle(ctx, paid))
	require.NoError(t, f.svc.Handle(ctx, paid))

	shipment, err := f.svc.GetByOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusShipped, shipment.Status)
	require.Equal(t, "ship-1", shipment.ID)
	require.Equal(t, "TRK123456", shipment.TrackingNumber)
	require.Equal(t, domain.CarrierFor(1), shipment.Carrier)

	require.Equal(t, []string{eventbus.ShipmentCreated}, eventTypes(f.outbox))
	created := f.outbox.All()[0].Envelope
	require.Equal(t, "shipment:ship-1", created.OriginKey)
	require.Equal(t, int64(1), created.OriginSequence)
	var payload contracts.ShipmentPayload
	require.NoError(t, created.Decode(&payload))
	require.Equal(t, "shipped", payload.Status)
}

func TestService_RefundCancelsShipmentOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, orderEvent(t, eventbus.OrderPaid, 1, 3)))
	refunded := orderEvent(t, eventbus.OrderRefunded, 1, 5)
	require.NoError(t, f.svc.Handle(ctx, refunded))
	require.NoError(t, f.svc.Handle(ctx, refunded))

	shipment, err := f.svc.GetByOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, shipment.Status)
	require.Equal(t, []string{eventbus.ShipmentCreated, eventbus.ShipmentCancelled}, eventTypes(f.outbox))
	require.Equal(t, int64(2), f.outbox.All()[1].Envelope.OriginSequence)
}

func TestService_CancelWithoutShipmentIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, orderEvent(t, eventbus.OrderCancelled, 2, 2)))

	_, err := f.svc.GetByOrder(ctx, 2)
	require.ErrorIs(t, err, ports.ErrNotFound)
	require.Empty(t, f.outbox.All())
}

func TestService_DeclinedPaymentCreatesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, orderEvent(t, eventbus.OrderPaymentFailed, 3, 2)))
	shipments, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Empty(t, shipments)
}

func TestService_StalePaidAfterRefundDoesNotReship(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, orderEvent(t, eventbus.OrderPaid, 1, 3)))
	require.NoError(t, f.svc.Handle(ctx, orderEvent(t, eventbus.OrderRefunded, 1, 5)))
	require.NoError(t, f.svc.Handle(ctx, orderEvent(t, eventbus.OrderPaid, 1, 3)))

	shipment, err := f.svc.GetByOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, shipment.Status)
	require.Len(t, f.outbox.All(), 2)
}

func TestService_Advance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, orderEvent(t, eventbus.OrderPaid, 1, 3)))
	shipment, err := f.svc.Advance(ctx, 1, domain.StatusInTransit)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInTransit, shipment.Status)

	_, err = f.svc.Advance(ctx, 1, domain.StatusPending)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Advance(ctx, 9, domain.StatusDelivered)
	require.ErrorIs(t, err, ports.ErrNotFound)

	// a later refund still sees the advanced shipment
	require.NoError(t, f.svc.Handle(ctx, orderEvent(t, eventbus.OrderRefunded, 1, 5)))
	shipment, err = f.svc.GetByOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, shipment.Status)
}

func TestRandomTrackingNumber(t *testing.T) {
	require.Regexp(t, `^TRK\d{6}$`, randomTrackingNumber())
}
