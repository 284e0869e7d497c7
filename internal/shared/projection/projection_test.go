package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
)

type counter struct {
	Name  string
	Value int
}

func env(originKey string, seq int64) eventbus.Envelope {
	return eventbus.Envelope{Topic: eventbus.TopicProducts, EventType: eventbus.ProductUpdated, OriginKey: originKey, OriginSequence: seq}
}

func setValue(v int) Mutation[counter] {
	return func(p *Projection[counter], _ bool) error {
		p.Entity.Value = v
		return nil
	}
}

func TestUpsert_CreatesThenOverwrites(t *testing.T) {
	store := NewMemoryStore[counter](nil)
	locks := keyedlock.NewSharded(0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	changed, err := Upsert(ctx, store, locks, "1", env("product:1", 1), now, func(p *Projection[counter], exists bool) error {
		require.False(t, exists)
		p.Entity = counter{Name: "widget", Value: 1}
		return nil
	})
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = Upsert(ctx, store, locks, "1", env("product:1", 2), now.Add(time.Minute), setValue(5))
	require.NoError(t, err)
	require.True(t, changed)

	got, err := store.Load(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, counter{Name: "widget", Value: 5}, got.Entity)
	require.Equal(t, int64(2), got.Metadata.Sequences["product:1"])
	require.Equal(t, now, got.Metadata.CreatedAt)
	require.Equal(t, now.Add(time.Minute), got.Metadata.UpdatedAt)
}

func TestUpsert_DuplicateAndStaleAreNoOps(t *testing.T) {
	store := NewMemoryStore[counter](nil)
	locks := keyedlock.NewSharded(0)
	ctx := context.Background()
	now := time.Now()

	_, err := Upsert(ctx, store, locks, "1", env("product:1", 5), now, setValue(5))
	require.NoError(t, err)
	before, _ := store.Load(ctx, "1")

	for _, seq := range []int64{5, 4, 1} {
		changed, err := Upsert(ctx, store, locks, "1", env("product:1", seq), now.Add(time.Hour), setValue(int(seq)*100))
		require.NoError(t, err)
		require.False(t, changed)
	}
	after, _ := store.Load(ctx, "1")
	require.Equal(t, before, after)
}

func TestUpsert_SequencesAreTrackedPerOrigin(t *testing.T) {
	store := NewMemoryStore[counter](nil)
	locks := keyedlock.NewSharded(0)
	ctx := context.Background()

	_, err := Upsert(ctx, store, locks, "1", env("product:1", 9), time.Now(), setValue(1))
	require.NoError(t, err)
	changed, err := Upsert(ctx, store, locks, "1", env("product-promotions:1", 1), time.Now(), setValue(2))
	require.NoError(t, err)
	require.True(t, changed)
}

func TestUpsert_TombstoneBlocksStaleResurrection(t *testing.T) {
	store := NewMemoryStore[counter](nil)
	locks := keyedlock.NewSharded(0)
	ctx := context.Background()

	_, err := Upsert(ctx, store, locks, "1", env("product:1", 1), time.Now(), setValue(1))
	require.NoError(t, err)
	_, err = Upsert(ctx, store, locks, "1", env("product:1", 3), time.Now(), func(p *Projection[counter], _ bool) error {
		p.Metadata.Deleted = true
		return nil
	})
	require.NoError(t, err)

	changed, err := Upsert(ctx, store, locks, "1", env("product:1", 2), time.Now(), setValue(2))
	require.NoError(t, err)
	require.False(t, changed)
	require.Empty(t, store.List())
}

func TestUpsert_TombstoneSurvivesOtherOrigins(t *testing.T) {
	store := NewMemoryStore[counter](nil)
	locks := keyedlock.NewSharded(0)
	ctx := context.Background()

	_, err := Upsert(ctx, store, locks, "1", env("product:1", 1), time.Now(), setValue(1))
	require.NoError(t, err)
	_, err = Upsert(ctx, store, locks, "1", env("product:1", 2), time.Now(), func(p *Projection[counter], _ bool) error {
		p.Metadata.Deleted = true
		return nil
	})
	require.NoError(t, err)

	changed, err := Upsert(ctx, store, locks, "1", env("product-promotions:1", 1), time.Now(), setValue(7))
	require.NoError(t, err)
	require.False(t, changed)
	got, err := store.Load(ctx, "1")
	require.NoError(t, err)
	require.True(t, got.Metadata.Deleted)
	require.Equal(t, "product:1", got.Metadata.DeletedBy)
	require.Equal(t, int64(1), got.Metadata.Sequences["product-promotions:1"])
	require.NotEqual(t, 7, got.Entity.Value)
	require.Empty(t, store.List())

	changed, err = Upsert(ctx, store, locks, "1", env("product:1", 3), time.Now(), func(p *Projection[counter], exists bool) error {
		require.False(t, exists)
		p.Entity = counter{Name: "widget", Value: 9}
		return nil
	})
	require.NoError(t, err)
	require.True(t, changed)
	got, err = store.Load(ctx, "1")
	require.NoError(t, err)
	require.False(t, got.Metadata.Deleted)
	require.Empty(t, got.Metadata.DeletedBy)
	require.Equal(t, counter{Name: "widget", Value: 9}, got.Entity)
}

func TestUpsert_SkipAdvancesSequenceAndMutationErrorDoesNot(t *testing.T) {
	store := NewMemoryStore[counter](nil)
	locks := keyedlock.NewSharded(0)
	ctx := context.Background()

	changed, err := Upsert(ctx, store, locks, "1", env("order:1", 1), time.Now(), func(*Projection[counter], bool) error { return ErrSkip })
	require.NoError(t, err)
	require.False(t, changed)
	got, _ := store.Load(ctx, "1")
	require.Equal(t, int64(1), got.Metadata.Sequences["order:1"])

	boom := errors.New("boom")
	_, err = Upsert(ctx, store, locks, "1", env("order:1", 2), time.Now(), func(*Projection[counter], bool) error { return boom })
	require.ErrorIs(t, err, boom)
	got, _ = store.Load(ctx, "1")
	require.Equal(t, int64(1), got.Metadata.Sequences["order:1"])
}

func TestMemoryStore_WritesStagedEventsToOutbox(t *testing.T) {
	log := outbox.NewLog()
	store := NewMemoryStore[counter](nil).WithOutbox(log)
	locks := keyedlock.NewSharded(0)
	ctx := context.Background()

	staged := eventbus.Envelope{ID: "e-1", Topic: eventbus.TopicShipments, EventType: eventbus.ShipmentCreated, OriginKey: "shipment:1", OriginSequence: 1}
	_, err := Upsert(ctx, store, locks, "1", env("order:1", 1), time.Now(), func(p *Projection[counter], _ bool) error {
		p.Entity.Value = 1
		p.Stage(staged)
		return nil
	})
	require.NoError(t, err)

	_, err = Upsert(ctx, store, locks, "1", env("order:1", 2), time.Now(), func(p *Projection[counter], _ bool) error {
		p.Stage(eventbus.Envelope{ID: "e-2", Topic: eventbus.TopicShipments, EventType: eventbus.ShipmentCancelled})
		return ErrSkip
	})
	require.NoError(t, err)

	records := log.All()
	require.Len(t, records, 1)
	require.Equal(t, "e-1", records[0].Envelope.ID)

	got, _ := store.Load(ctx, "1")
	require.Empty(t, got.Pending)
}
