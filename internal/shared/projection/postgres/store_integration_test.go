//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	outboxpostgres "github.com/Apurer/go-commerce-saga/internal/platform/outbox/postgres"
	"github.com/Apurer/go-commerce-saga/internal/platform/postgres/pgtest"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
	projectionpostgres "github.com/Apurer/go-commerce-saga/internal/shared/projection/postgres"
)

type counter struct {
	OrderID int64 `json:"order_id"`
	Hits    int   `json:"hits"`
}

func TestStore_UpsertDedupesAndStagesOutbox(t *testing.T) {
	db := pgtest.Start(t)
	require.NoError(t, projectionpostgres.Migrate(db, "counters"))
	store := projectionpostgres.NewStore[counter](db, "counters")
	locks := keyedlock.NewSharded(4)
	ctx := context.Background()

	env, err := eventbus.NewEnvelope(eventbus.TopicOrders, eventbus.OrderCreated, "order:1", 2, map[string]int64{"order_id": 1})
	require.NoError(t, err)
	follow, err := eventbus.NewEnvelope(eventbus.TopicShipments, eventbus.ShipmentCreated, "shipment:1", 1, map[string]int64{"order_id": 1})
	require.NoError(t, err)

	mutate := func(p *projection.Projection[counter], exists bool) error {
		if !exists {
			p.Entity = counter{OrderID: 1}
			p.Stage(follow)
		}
		p.Entity.Hits++
		return nil
	}

	for i := 0; i < 2; i++ {
		_, err := projection.Upsert[counter](ctx, store, locks, "order-1", env, time.Now(), mutate)
		require.NoError(t, err)
	}

	got, err := store.Load(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Entity.Hits, "redelivery must not apply twice")
	assert.Equal(t, int64(2), got.Metadata.Sequences["order:1"])

	pending, err := outboxpostgres.NewStore(db).FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, follow.ID, pending[0].Envelope.ID)

	live, err := store.ListLive(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 1)

	missing, err := store.Load(ctx, "order-404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
