package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEntryMatches(t *testing.T) {
	lamp := Entry{
		ID:          3,
		Name:        "Desk Lamp",
		Description: "Warm LED light",
		Price:       decimal.RequireFromString("24.99"),
		Stock:       0,
		Category:    &Category{ID: 2, Name: "Office"},
		Tags:        []Tag{{ID: 4, Name: "lighting"}},
	}
	min := decimal.NewFromInt(20)
	max := decimal.NewFromInt(24)

	cases := []struct {
		name  string
		query Query
		want  bool
	}{
		{"empty query", Query{}, true},
		{"name text", Query{Text: "lamp"}, true},
		{"description text", Query{Text: "LED"}, true},
		{"missing text", Query{Text: "grinder"}, false},
		{"category", Query{CategoryID: 2}, true},
		{"other category", Query{CategoryID: 1}, false},
		{"tag", Query{TagID: 4}, true},
		{"other tag", Query{TagID: 1}, false},
		{"min price", Query{MinPrice: &min}, true},
		{"max price", Query{MaxPrice: &max}, false},
		{"in stock only", Query{InStockOnly: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, lamp.Matches(tc.query))
		})
	}
}

func TestEntryMatchesWithoutCategory(t *testing.T) {
	require.False(t, Entry{Name: "x"}.Matches(Query{CategoryID: 1}))
}
