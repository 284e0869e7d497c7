package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	catalogclient "github.com/Apurer/go-commerce-saga/internal/clients/http/catalog"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
)

var (
	_ ports.Inventory  = (*Inventory)(nil)
	_ ports.Promotions = (*Promotions)(nil)
)

// Inventory adapts the product service client to the inventory port.
type Inventory struct {
	client *catalogclient.Client
}

func NewInventory(client *catalogclient.Client) *Inventory {
	return &Inventory{client: client}
}

func (i *Inventory) GetProduct(ctx context.Context, id int64) (ports.Product, error) {
	product, err := i.client.GetProduct(ctx, id)
	if err != nil {
		return ports.Product{}, mapClientError(err, id)
	}
	return ToProduct(product), nil
}

func (i *Inventory) AdjustStock(ctx context.Context, id int64, delta int, idempotencyKey string) error {
	if err := i.client.AdjustStock(ctx, id, delta, idempotencyKey); err != nil {
		return mapClientError(err, id)
	}
	return nil
}

// Promotions adapts the promotion service client to the promotions port.
type Promotions struct {
	client *catalogclient.Client
}

func NewPromotions(client *catalogclient.Client) *Promotions {
	return &Promotions{client: client}
}

func (p *Promotions) ListActive(ctx context.Context, productID int64) ([]domain.Promotion, error) {
	promos, err := p.client.ListActivePromotions(ctx, productID)
	if err != nil {
		return nil, mapClientError(err, productID)
	}
	return ToPromotions(promos), nil
}

func mapClientError(err error, productID int64) error {
	var statusErr *catalogclient.StatusError
	if !errors.As(err, &statusErr) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %w", ports.ErrUnavailable, err)
	}
	switch {
	case statusErr.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %d", ports.ErrProductNotFound, productID)
	case statusErr.StatusCode == http.StatusConflict,
		statusErr.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ports.ErrStockConflict, statusErr.Message)
	case statusErr.StatusCode == http.StatusTooManyRequests,
		statusErr.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", ports.ErrUnavailable, statusErr)
	}
	return statusErr
}

// ToProduct maps the wire product into the port view.
func ToProduct(p *catalogclient.Product) ports.Product {
	return ports.Product{
		ID:    p.ID,
		Name:  p.Name,
		Price: decimal.NewFromFloat(p.Price),
		Stock: p.Stock,
	}
}

// ToPromotions keeps active promotions only.
func ToPromotions(promos []catalogclient.Promotion) []domain.Promotion {
	out := make([]domain.Promotion, 0, len(promos))
	for _, p := range promos {
		if !p.Active {
			continue
		}
		out = append(out, domain.Promotion{
			ID:    p.ID,
			Name:  p.Name,
			Type:  domain.DiscountType(p.DiscountType),
			Value: decimal.NewFromFloat(p.DiscountValue),
		})
	}
	return out
}
