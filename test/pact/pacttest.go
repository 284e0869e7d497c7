//go:build pact
// +build pact

package pacttest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const (
	// ProviderName is the orders API verified against the portal contract.
	ProviderName = "commerce-orders-api"
	ConsumerName = "order-portal"

	// CatalogConsumerName is the orders service acting as a catalog consumer.
	CatalogConsumerName = "commerce-orders"
	InventoryProvider   = "inventory-service"
	PromotionProvider   = "promotion-service"

	StateOrdersBaseline  = "orders baseline"
	StateOrderExists     = "a committed order exists"
	StateOrderMissing    = "no order with id 999"
	StateProductExists   = "product 1 exists with stock"
	StateProductMissing  = "no product with id 404"
	StatePromotionActive = "product 1 has an active promotion"
)

const (
	ExistingOrderID int64 = 1
	MissingOrderID  int64 = 999

	ExistingProductID int64 = 1
	MissingProductID  int64 = 404

	OrderOwnerID = "pact-owner"
)

const (
	exampleProductName   = "Espresso Machine"
	examplePromotionName = "Spring sale"
)

// PactDir returns the workspace-level directory for generated pact files.
func PactDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "pacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact dir: %v", err)
	}
	return dir
}

// PactFile returns the canonical pact file path for the order portal consumer.
func PactFile(t testing.TB) string {
	t.Helper()
	return filepath.Join(PactDir(t), ConsumerName+"-"+ProviderName+".json")
}

// LogDir returns the log output directory for pact-go.
func LogDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "bin", "pact-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact log dir: %v", err)
	}
	return dir
}

// ExampleProductPayload is the inventory service view of product 1.
func ExampleProductPayload() map[string]any {
	return map[string]any{
		"id":    ExistingProductID,
		"name":  exampleProductName,
		"price": 50.0,
		"stock": 100,
	}
}

// ExamplePromotionPayload is the active promotion on product 1.
func ExamplePromotionPayload() map[string]any {
	return map[string]any{
		"id":             1,
		"product_id":     ExistingProductID,
		"name":           examplePromotionName,
		"discount_type":  "percentage",
		"discount_value": 10.0,
		"active":         true,
	}
}

// ExampleCreateOrderPayload orders two units of product 1.
func ExampleCreateOrderPayload() map[string]any {
	return map[string]any{
		"owner_id": OrderOwnerID,
		"items": []map[string]any{
			{"product_id": ExistingProductID, "quantity": 2},
		},
	}
}

// projectRoot walks up from this file to the workspace root.
func projectRoot(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine caller for pact paths")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
