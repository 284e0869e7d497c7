package domain

import (
	"cmp"
	"slices"
)

// DefaultRecommendations caps a recommendation list when the caller sets no limit.
const DefaultRecommendations = 5

// PurchaseHistory is what one owner paid for, by order. Refunded orders are
// removed.
type PurchaseHistory struct {
	OwnerID string            `json:"owner_id"`
	Orders  map[int64][]int64 `json:"orders"`
}

// Clone returns a copy that shares no maps or slices with h.
func (h PurchaseHistory) Clone() PurchaseHistory {
	orders := make(map[int64][]int64, len(h.Orders))
	for id, products := range h.Orders {
		orders[id] = slices.Clone(products)
	}
	h.Orders = orders
	return h
}

// Record stores the products of a paid order.
func (h *PurchaseHistory) Record(orderID int64, products []int64) {
	if h.Orders == nil {
		h.Orders = map[int64][]int64{}
	}
	distinct := slices.Clone(products)
	slices.Sort(distinct)
	h.Orders[orderID] = slices.Compact(distinct)
}

// Forget drops an order. It reports whether the order was recorded.
func (h *PurchaseHistory) Forget(orderID int64) bool {
	if _, ok := h.Orders[orderID]; !ok {
		return false
	}
	delete(h.Orders, orderID)
	return true
}

// Products returns every product the owner paid for, ascending.
func (h PurchaseHistory) Products() []int64 {
	var out []int64
	for _, products := range h.Orders {
		out = append(out, products...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Recommendation is a product bought by owners with overlapping purchases.
// Score counts those owners.
type Recommendation struct {
	ProductID int64 `json:"product_id"`
	Score     int   `json:"score"`
}

// Recommendations is the co-purchase view for one owner.
type Recommendations struct {
	OwnerID     string           `json:"owner_id"`
	Purchased   []int64          `json:"purchased"`
	Recommended []Recommendation `json:"recommended"`
}

// Recommend ranks products that other owners bought alongside any of the
// owner's products. Products the owner already has are left out. Ties go to
// the lower product id.
func Recommend(owner PurchaseHistory, others []PurchaseHistory, limit int) Recommendations {
	if limit <= 0 {
		limit = DefaultRecommendations
	}
	purchased := owner.Products()
	scores := map[int64]int{}
	for _, other := range others {
		if other.OwnerID == owner.OwnerID {
			continue
		}
		products := other.Products()
		if !overlaps(purchased, products) {
			continue
		}
		for _, id := range products {
			if _, owned := slices.BinarySearch(purchased, id); !owned {
				scores[id]++
			}
		}
	}

	ranked := make([]Recommendation, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, Recommendation{ProductID: id, Score: score})
	}
	slices.SortFunc(ranked, func(a, b Recommendation) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if purchased == nil {
		purchased = []int64{}
	}
	return Recommendations{OwnerID: owner.OwnerID, Purchased: purchased, Recommended: ranked}
}

// overlaps reports whether two ascending id lists share an element.
func overlaps(a, b []int64) bool {
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] == b[j]:
			return true
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return false
}
