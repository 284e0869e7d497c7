package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

func envelope(t *testing.T, topic, eventType string, seq int64) eventbus.Envelope {
	t.Helper()
	env, err := eventbus.NewEnvelope(topic, eventType, "order:1", seq, map[string]any{"order_id": 1})
	require.NoError(t, err)
	return env
}

func receive(t *testing.T, q eventbus.Queue) eventbus.Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	return d
}

func TestBroker_FanoutToEveryBoundQueue(t *testing.T) {
	broker := NewBroker()
	analytics, err := broker.Bind("analytics", eventbus.TopicOrders, eventbus.TopicProducts)
	require.NoError(t, err)
	shipping, err := broker.Bind("shipping", eventbus.TopicOrders)
	require.NoError(t, err)

	require.NoError(t, broker.Publish(context.Background(), envelope(t, eventbus.TopicOrders, eventbus.OrderPaid, 2)))
	require.NoError(t, broker.Publish(context.Background(), envelope(t, eventbus.TopicProducts, eventbus.ProductUpdated, 1)))

	require.Equal(t, 2, analytics.(*Queue).Len())
	require.Equal(t, 1, shipping.(*Queue).Len())
}

func TestQueue_OneInFlightAndOrderPreserved(t *testing.T) {
	broker := NewBroker()
	q, err := broker.Bind("audit", eventbus.TopicOrders)
	require.NoError(t, err)
	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, broker.Publish(context.Background(), envelope(t, eventbus.TopicOrders, eventbus.OrderCreated, seq)))
	}

	first := receive(t, q)
	require.Equal(t, int64(1), first.Envelope().OriginSequence)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "second delivery must wait for the first to settle")

	require.NoError(t, first.Nack(context.Background()))
	again := receive(t, q)
	require.Equal(t, int64(1), again.Envelope().OriginSequence)
	require.Equal(t, 2, again.(*delivery).Attempt())
	require.NoError(t, again.Ack(context.Background()))
	require.ErrorIs(t, again.Ack(context.Background()), ErrStaleDelivery)

	require.Equal(t, int64(2), receive(t, q).Envelope().OriginSequence)
}

func TestQueue_RequeueInFlightRedelivers(t *testing.T) {
	broker := NewBroker()
	q, err := broker.Bind("shipping", eventbus.TopicOrders)
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), envelope(t, eventbus.TopicOrders, eventbus.OrderPaid, 4)))

	d := receive(t, q)
	q.(*Queue).RequeueInFlight()
	redelivered := receive(t, q)
	require.Equal(t, d.Envelope().ID, redelivered.Envelope().ID)
}

func TestQueue_CloseUnblocksReceive(t *testing.T) {
	broker := NewBroker()
	q, err := broker.Bind("search", eventbus.TopicProducts)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		_, err := q.Receive(context.Background())
		done <- err
	}()
	require.NoError(t, q.Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, eventbus.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("receive did not return after close")
	}
}
