package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func committedOrder(t *testing.T) *Order {
	t.Helper()
	order, err := NewOrder("alice", time.Now())
	require.NoError(t, err)
	require.NoError(t, order.AddItem(LineItem{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(50)}))
	require.NoError(t, order.AddItem(LineItem{ProductID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(30)}))
	for _, next := range []Status{StatusStockReserved, StatusPriced, StatusCommitted} {
		require.NoError(t, order.TransitionTo(next))
	}
	return order
}

func TestCommitRequiresEveryDecrement(t *testing.T) {
	order := committedOrder(t)
	order.MarkDecremented(0)

	require.ErrorIs(t, order.Commit(time.Now()), ErrInvalidTransition)
	require.False(t, order.StockSettled)
	require.Empty(t, order.Events())

	order.MarkDecremented(1)
	require.NoError(t, order.Commit(time.Now()))
	require.True(t, order.StockSettled)
	require.Len(t, order.Events(), 1)
	require.Equal(t, "order_created", order.Events()[0].EventName())

	require.ErrorIs(t, order.Commit(time.Now()), ErrInvalidTransition)
}

func TestAbortedOnlyBeforeSettlement(t *testing.T) {
	aborted := committedOrder(t)
	require.NoError(t, aborted.Cancel("stock_adjustment_failed", time.Now()))
	require.True(t, aborted.Aborted())

	refunded := committedOrder(t)
	refunded.MarkDecremented(0)
	refunded.MarkDecremented(1)
	require.NoError(t, refunded.Commit(time.Now()))
	require.NoError(t, refunded.MarkPaid("card", time.Now()))
	require.NoError(t, refunded.RequestRefund("damaged"))
	refunded.MarkRestored(0)
	refunded.MarkRestored(1)
	require.NoError(t, refunded.CompleteRefund(time.Now()))
	require.Equal(t, StatusCancelled, refunded.Status)
	require.False(t, refunded.Aborted())
	require.Equal(t, decimal.NewFromInt(130).String(), refunded.Total.String())
}
