//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	searchpostgres "github.com/Apurer/go-commerce-saga/internal/domains/search/adapters/persistence/postgres"
	"github.com/Apurer/go-commerce-saga/internal/domains/search/domain"
	"github.com/Apurer/go-commerce-saga/internal/platform/postgres/pgtest"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

func save(t *testing.T, store *searchpostgres.Store, entry domain.Entry, deleted bool) {
	t.Helper()
	now := time.Now().UTC()
	p := &projection.Projection[domain.Entry]{
		Entity:   entry,
		Metadata: projection.Metadata{CreatedAt: now, UpdatedAt: now, Sequences: map[string]int64{"product:1": 1}, Deleted: deleted},
	}
	require.NoError(t, store.Save(context.Background(), strconv.FormatInt(entry.ID, 10), p))
}

func TestStore_SearchFilters(t *testing.T) {
	db := pgtest.Start(t)
	store := searchpostgres.NewStore(db)
	ctx := context.Background()

	save(t, store, domain.Entry{
		ID: 1, Name: "Espresso Machine", Description: "Single boiler", Price: decimal.NewFromInt(50), Stock: 3,
		Category: &domain.Category{ID: 1, Name: "Kitchen"}, Tags: []domain.Tag{{ID: 1, Name: "coffee"}},
	}, false)
	save(t, store, domain.Entry{
		ID: 2, Name: "Desk Lamp", Description: "Dimmable 100% LED", Price: decimal.RequireFromString("24.99"), Stock: 0,
		Category: &domain.Category{ID: 2, Name: "Office"}, Tags: []domain.Tag{},
	}, false)
	save(t, store, domain.Entry{ID: 3, Name: "Retired Grinder", Price: decimal.NewFromInt(10), Stock: 5}, true)

	all, err := store.Search(ctx, domain.Query{})
	require.NoError(t, err)
	require.Len(t, all, 2, "tombstoned products are hidden")

	text, err := store.Search(ctx, domain.Query{Text: "espresso"})
	require.NoError(t, err)
	require.Len(t, text, 1)
	assert.Equal(t, int64(1), text[0].ID)

	literal, err := store.Search(ctx, domain.Query{Text: "100%"})
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, int64(2), literal[0].ID)

	tagged, err := store.Search(ctx, domain.Query{TagID: 1})
	require.NoError(t, err)
	require.Len(t, tagged, 1)

	maxPrice := decimal.NewFromInt(30)
	cheap, err := store.Search(ctx, domain.Query{MaxPrice: &maxPrice})
	require.NoError(t, err)
	require.Len(t, cheap, 1)
	assert.Equal(t, int64(2), cheap[0].ID)

	inStock, err := store.Search(ctx, domain.Query{InStockOnly: true, CategoryID: 1})
	require.NoError(t, err)
	require.Len(t, inStock, 1)

	loaded, err := store.Load(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Kitchen", loaded.Entity.Category.Name)
}
