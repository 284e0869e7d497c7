//go:build integration
// +build integration

// To enable gopls support for this file, add the following to your VSCode settings.json:
// "gopls": {
//   "buildFlags": ["-tags=integration"]
// }

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderpostgres "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/persistence/postgres"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	outboxpostgres "github.com/Apurer/go-commerce-saga/internal/platform/outbox/postgres"
	"github.com/Apurer/go-commerce-saga/internal/platform/postgres/pgtest"
)

func newOrder(t *testing.T, owner string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(owner, time.Now())
	require.NoError(t, err)
	require.NoError(t, order.AddItem(domain.LineItem{ProductID: 7, ProductName: "Kettle", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")}))
	return order
}

func TestPostgresRepository_CreateUpdateAndOutbox(t *testing.T) {
	db := pgtest.Start(t)
	repo := orderpostgres.NewRepository(db)
	outbox := outboxpostgres.NewStore(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newOrder(t, "alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.True(t, created.Total.Equal(decimal.NewFromInt(25)))

	env, err := eventbus.NewEnvelope(eventbus.TopicOrders, eventbus.OrderCreated, "order:1", 2, map[string]int64{"order_id": created.ID})
	require.NoError(t, err)
	require.NoError(t, created.TransitionTo(domain.StatusStockReserved))
	created.MarkDecremented(0)
	updated, err := repo.Update(ctx, created, 1, env)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, domain.StatusStockReserved, updated.Status)
	require.Len(t, updated.Items, 1)
	assert.True(t, updated.Items[0].StockDecremented)
	assert.Equal(t, "Kettle", updated.Items[0].ProductName)
	assert.False(t, updated.StockSettled)

	pending, err := outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, env.ID, pending[0].Envelope.ID)
	assert.Equal(t, int64(2), pending[0].Envelope.OriginSequence)

	_, err = repo.Update(ctx, created, 1, env)
	require.ErrorIs(t, err, ports.ErrVersionConflict)
	pending, err = outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "rejected writes must not append events")

	require.NoError(t, outbox.MarkFailed(ctx, pending[0].Position, "broker down"))
	require.NoError(t, outbox.MarkPublished(ctx, pending[0].Position, time.Now()))
	pending, err = outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	updated.StockSettled = true
	settled, err := repo.Update(ctx, updated, updated.Version)
	require.NoError(t, err)
	assert.True(t, settled.StockSettled)

	_, err = repo.GetByID(ctx, 404)
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestPostgresRepository_ListFiltersByOwner(t *testing.T) {
	db := pgtest.Start(t)
	repo := orderpostgres.NewRepository(db)
	ctx := context.Background()

	for _, owner := range []string{"alice", "bob", "alice"} {
		_, err := repo.Create(ctx, newOrder(t, owner))
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alice, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Less(t, alice[0].ID, alice[1].ID)
}

func TestPostgresIdempotencyStore_SaveReplayAndConflict(t *testing.T) {
	db := pgtest.Start(t)
	store := orderpostgres.NewIdempotencyStore(db)
	ctx := context.Background()

	missing, err := store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now := time.Now().UTC()
	record := ports.IdempotencyRecord{Key: "key-1", RequestHash: "hash-a", OrderID: 1, CreatedAt: now, UpdatedAt: now}
	saved, err := store.Save(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.OrderID)

	replayed, err := store.Save(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, "hash-a", replayed.RequestHash)

	record.RequestHash = "hash-b"
	_, err = store.Save(ctx, record)
	require.ErrorIs(t, err, ports.ErrIdempotencyConflict)
}

func TestPostgresReconciliationSink_RecordsGap(t *testing.T) {
	db := pgtest.Start(t)
	sink := orderpostgres.NewReconciliationSink(db)
	ctx := context.Background()

	require.NoError(t, sink.RecordGap(ctx, ports.ReconciliationGap{
		OrderID: 3, ProductID: 7, Quantity: 2, Operation: "restore", Reason: "inventory timeout", DetectedAt: time.Now(),
	}))

	var gaps []orderpostgres.GapRecord
	require.NoError(t, db.Find(&gaps).Error)
	require.Len(t, gaps, 1)
	assert.Equal(t, "restore", gaps[0].Operation)
}
