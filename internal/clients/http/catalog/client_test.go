package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_GetProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/inventory/api/v1/products/7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Product{ID: 7, Name: "Lamp", Price: 19.5, Stock: 3})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL + "/inventory")
	require.NoError(t, err)
	product, err := client.GetProduct(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "Lamp", product.Name)
	require.Equal(t, 3, product.Stock)
}

func TestClient_AdjustStockSendsDeltaAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/products/1/stock", r.URL.Path)
		require.Equal(t, "order-1-item-0-decrement", r.Header.Get("Idempotency-Key"))
		var body StockAdjustment
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, -2, body.Quantity)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	require.NoError(t, client.AdjustStock(context.Background(), 1, -2, "order-1-item-0-decrement"))
}

func TestClient_ListActivePromotionsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/promotions", r.URL.Path)
		require.Equal(t, "4", r.URL.Query().Get("product_id"))
		require.Equal(t, "true", r.URL.Query().Get("active"))
		_ = json.NewEncoder(w).Encode([]Promotion{{ID: 2, ProductID: 4, DiscountType: "fixed", DiscountValue: 5, Active: true}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	promos, err := client.ListActivePromotions(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, promos, 1)
	require.Equal(t, int64(2), promos[0].ID)
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Product not found"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = client.GetProduct(context.Background(), 99)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Equal(t, "Product not found", statusErr.Message)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}
