package application

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
)

type normalizedCreateOrder struct {
	OwnerID string           `json:"owner_id"`
	Items   []normalizedItem `json:"items"`
}

type normalizedItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// FingerprintCreateOrder hashes the create request without its idempotency
// key. Items are summed per product and sorted so equivalent requests match.
func FingerprintCreateOrder(input ordertypes.CreateOrderInput) (string, error) {
	totals := make(map[int64]int, len(input.Items))
	for _, item := range input.Items {
		totals[item.ProductID] += item.Quantity
	}
	normalized := normalizedCreateOrder{
		OwnerID: strings.TrimSpace(input.OwnerID),
		Items:   make([]normalizedItem, 0, len(totals)),
	}
	for id, qty := range totals {
		normalized.Items = append(normalized.Items, normalizedItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(normalized.Items, func(i, j int) bool {
		return normalized.Items[i].ProductID < normalized.Items[j].ProductID
	})
	payload, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
