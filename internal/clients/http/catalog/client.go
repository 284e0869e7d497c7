// Package catalog is the HTTP client for the external product and promotion
// services.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"
)

// HttpRequestDoer performs HTTP requests.
type HttpRequestDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Product is the product service representation.
type Product struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// StockAdjustment is the body of the stock endpoint; Quantity is a signed delta.
type StockAdjustment struct {
	Quantity int `json:"quantity"`
}

// Promotion is the promotion service representation.
type Promotion struct {
	ID            int64   `json:"id"`
	ProductID     int64   `json:"product_id"`
	Name          string  `json:"name"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue float64 `json:"discount_value"`
	Active        bool    `json:"active"`
}

// Error is the error body returned by both services.
type Error struct {
	Message *string `json:"message,omitempty"`
	Detail  *string `json:"detail,omitempty"`
}

// StatusError reports a non-success response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog API status %d: %s", e.StatusCode, e.Message)
}

// Client calls one catalog service rooted at server.
type Client struct {
	server string
	client HttpRequestDoer
}

// ClientOption customises the client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(doer HttpRequestDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// NewClient instantiates the client with sane defaults.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse catalog base URL: %w", err)
	}
	c := &Client{server: baseURL, client: &http.Client{Timeout: 5 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetProduct fetches a single product.
func (c *Client) GetProduct(ctx context.Context, id int64) (*Product, error) {
	pathParam, err := runtime.StyleParamWithLocation("simple", false, "productId", runtime.ParamLocationPath, id)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/products/%s", pathParam), nil, nil)
	if err != nil {
		return nil, err
	}
	var product Product
	if err := c.do(req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// AdjustStock applies a signed delta. idempotencyKey is sent as the
// Idempotency-Key header when set.
func (c *Client) AdjustStock(ctx context.Context, id int64, delta int, idempotencyKey string) error {
	pathParam, err := runtime.StyleParamWithLocation("simple", false, "productId", runtime.ParamLocationPath, id)
	if err != nil {
		return err
	}
	body, err := json.Marshal(StockAdjustment{Quantity: delta})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/api/v1/products/%s/stock", pathParam), nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return c.do(req, nil)
}

// ListActivePromotions returns the active promotions of a product.
func (c *Client) ListActivePromotions(ctx context.Context, productID int64) ([]Promotion, error) {
	query := url.Values{}
	for name, value := range map[string]any{"product_id": productID, "active": true} {
		frag, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, value)
		if err != nil {
			return nil, err
		}
		parsed, err := url.ParseQuery(frag)
		if err != nil {
			return nil, err
		}
		for k, vs := range parsed {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/promotions", query, nil)
	if err != nil {
		return nil, err
	}
	promos := []Promotion{}
	if err := c.do(req, &promos); err != nil {
		return nil, err
	}
	return promos, nil
}

func (c *Client) newRequest(ctx context.Context, method, operationPath string, query url.Values, body io.Reader) (*http.Request, error) {
	serverURL, err := url.Parse(c.server)
	if err != nil {
		return nil, err
	}
	if operationPath[0] == '/' {
		operationPath = "." + operationPath
	}
	queryURL, err := serverURL.Parse(operationPath)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		queryURL.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, queryURL.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call catalog API: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read catalog response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}

func errorMessage(raw []byte, fallback string) string {
	var body Error
	if err := json.Unmarshal(raw, &body); err != nil {
		return fallback
	}
	for _, candidate := range []*string{body.Message, body.Detail} {
		if candidate == nil {
			continue
		}
		if msg := strings.TrimSpace(*candidate); msg != "" {
			return msg
		}
	}
	return fallback
}
