package domain

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Promotion is an active promotion shown next to a search hit.
type Promotion struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// Entry is one searchable product.
type Entry struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    *Category       `json:"category,omitempty"`
	Tags        []Tag           `json:"tags"`
	Promotions  []Promotion     `json:"promotions"`
}

func (e Entry) Clone() Entry {
	if e.Category != nil {
		c := *e.Category
		e.Category = &c
	}
	e.Tags = slices.Clone(e.Tags)
	e.Promotions = slices.Clone(e.Promotions)
	return e
}

// Query filters entries. Zero values disable a filter.
type Query struct {
	Text        string
	CategoryID  int64
	TagID       int64
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	InStockOnly bool
}

// Matches reports whether e satisfies every filter in q. Text matches name or
// description, case-insensitively.
func (e Entry) Matches(q Query) bool {
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		if !strings.Contains(strings.ToLower(e.Name), text) && !strings.Contains(strings.ToLower(e.Description), text) {
			return false
		}
	}
	if q.CategoryID != 0 && (e.Category == nil || e.Category.ID != q.CategoryID) {
		return false
	}
	if q.TagID != 0 && !slices.ContainsFunc(e.Tags, func(t Tag) bool { return t.ID == q.TagID }) {
		return false
	}
	if q.MinPrice != nil && e.Price.LessThan(*q.MinPrice) {
		return false
	}
	if q.MaxPrice != nil && e.Price.GreaterThan(*q.MaxPrice) {
		return false
	}
	if q.InStockOnly && e.Stock <= 0 {
		return false
	}
	return true
}
