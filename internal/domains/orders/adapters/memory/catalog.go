package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Apurer/go-commerce-saga/internal/contracts"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
)

var (
	_ ports.Inventory  = (*Catalog)(nil)
	_ ports.Promotions = (*Catalog)(nil)
)

// CatalogProduct is a product held by the in-memory catalog.
type CatalogProduct struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    *contracts.Category
	Tags        []contracts.Tag
}

// CatalogPromotion is a promotion held by the in-memory catalog.
type CatalogPromotion struct {
	ID        int64
	ProductID int64
	Name      string
	Type      domain.DiscountType
	Value     decimal.Decimal
	Active    bool
}

// Catalog stands in for the product and promotion services in local runs.
// Every change is published as a full snapshot on the products or promotions
// topic with a per-entity sequence.
type Catalog struct {
	mu         sync.Mutex
	products   map[int64]*CatalogProduct
	promotions map[int64]*CatalogPromotion
	applied    map[string]struct{}
	sequences  map[string]int64
	events     *outbox.Log
}

// NewCatalog builds an empty catalog publishing into events. A nil log
// disables publishing.
func NewCatalog(events *outbox.Log) *Catalog {
	return &Catalog{
		products:   map[int64]*CatalogProduct{},
		promotions: map[int64]*CatalogPromotion{},
		applied:    map[string]struct{}{},
		sequences:  map[string]int64{},
		events:     events,
	}
}

// Seed loads a small demo catalog.
func (c *Catalog) Seed(ctx context.Context) error {
	kitchen := &contracts.Category{ID: 1, Name: "Kitchen"}
	office := &contracts.Category{ID: 2, Name: "Office"}
	products := []CatalogProduct{
		{ID: 1, Name: "Espresso Machine", Description: "Single boiler espresso machine", Price: decimal.NewFromInt(50), Stock: 100, Category: kitchen, Tags: []contracts.Tag{{ID: 1, Name: "coffee"}}},
		{ID: 2, Name: "Burr Grinder", Description: "Conical burr grinder", Price: decimal.NewFromInt(30), Stock: 40, Category: kitchen, Tags: []contracts.Tag{{ID: 1, Name: "coffee"}, {ID: 2, Name: "bestseller"}}},
		{ID: 3, Name: "Desk Lamp", Description: "Dimmable LED desk lamp", Price: decimal.RequireFromString("24.99"), Stock: 10, Category: office, Tags: []contracts.Tag{}},
	}
	for _, p := range products {
		if err := c.PutProduct(ctx, p); err != nil {
			return err
		}
	}
	return c.PutPromotion(ctx, CatalogPromotion{
		ID: 1, ProductID: 1, Name: "Spring sale", Type: domain.DiscountPercentage, Value: decimal.NewFromInt(10), Active: true,
	})
}

// PutProduct creates or replaces a product.
func (c *Catalog) PutProduct(_ context.Context, p CatalogProduct) error {
	if p.ID <= 0 {
		return domain.ErrInvalidProductID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventType := eventbus.ProductUpdated
	if _, ok := c.products[p.ID]; !ok {
		eventType = eventbus.ProductCreated
	}
	clone := p
	clone.Tags = append([]contracts.Tag{}, p.Tags...)
	c.products[p.ID] = &clone
	return c.publishProduct(eventType, &clone)
}

// DeleteProduct removes a product and its promotions.
func (c *Catalog) DeleteProduct(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("%w: %d", ports.ErrProductNotFound, id)
	}
	delete(c.products, id)
	for promoID, promo := range c.promotions {
		if promo.ProductID == id {
			delete(c.promotions, promoID)
		}
	}
	return c.publishProduct(eventbus.ProductDeleted, p)
}

// PutPromotion creates or replaces a promotion.
func (c *Catalog) PutPromotion(_ context.Context, promo CatalogPromotion) error {
	if err := (domain.Promotion{ID: promo.ID, Type: promo.Type, Value: promo.Value}).Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[promo.ProductID]; !ok {
		return fmt.Errorf("%w: %d", ports.ErrProductNotFound, promo.ProductID)
	}
	eventType := eventbus.PromotionUpdated
	if _, ok := c.promotions[promo.ID]; !ok {
		eventType = eventbus.PromotionCreated
	}
	clone := promo
	c.promotions[promo.ID] = &clone
	return c.publishPromotions(eventType, promo.ID, promo.ProductID)
}

// DeletePromotion removes a promotion; the event carries the remaining
// active list, empty when none is left.
func (c *Catalog) DeletePromotion(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	promo, ok := c.promotions[id]
	if !ok {
		return fmt.Errorf("promotion %d not found", id)
	}
	delete(c.promotions, id)
	return c.publishPromotions(eventbus.PromotionDeleted, id, promo.ProductID)
}

func (c *Catalog) GetProduct(_ context.Context, id int64) (ports.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return ports.Product{}, fmt.Errorf("%w: %d", ports.ErrProductNotFound, id)
	}
	return ports.Product{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock}, nil
}

// AdjustStock applies delta once per idempotency key. Stock never goes
// negative.
func (c *Catalog) AdjustStock(_ context.Context, id int64, delta int, idempotencyKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idempotencyKey != "" {
		if _, done := c.applied[idempotencyKey]; done {
			return nil
		}
	}
	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("%w: %d", ports.ErrProductNotFound, id)
	}
	if p.Stock+delta < 0 {
		return fmt.Errorf("%w: product %d has %d in stock", ports.ErrStockConflict, id, p.Stock)
	}
	p.Stock += delta
	if idempotencyKey != "" {
		c.applied[idempotencyKey] = struct{}{}
	}
	return c.publishProduct(eventbus.ProductStockUpdated, p)
}

func (c *Catalog) ListActive(_ context.Context, productID int64) ([]domain.Promotion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Promotion
	for _, promo := range c.activeFor(productID) {
		out = append(out, domain.Promotion{ID: promo.ID, Name: promo.Name, Type: promo.Type, Value: promo.Value})
	}
	return out, nil
}

// Stock reports the current stock of a product, or -1 when unknown.
func (c *Catalog) Stock(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[id]; ok {
		return p.Stock
	}
	return -1
}

func (c *Catalog) activeFor(productID int64) []*CatalogPromotion {
	var out []*CatalogPromotion
	for _, promo := range c.promotions {
		if promo.ProductID == productID && promo.Active {
			out = append(out, promo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) publishProduct(eventType string, p *CatalogProduct) error {
	payload := contracts.ProductPayload{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		Stock:       p.Stock,
		Category:    p.Category,
		Tags:        append([]contracts.Tag{}, p.Tags...),
	}
	return c.publish(eventbus.TopicProducts, eventType, eventbus.OriginKey(contracts.OriginProduct, p.ID), payload)
}

func (c *Catalog) publishPromotions(eventType string, promotionID, productID int64) error {
	var refs []contracts.PromotionRef
	for _, promo := range c.activeFor(productID) {
		refs = append(refs, contracts.PromotionRef{
			ID:            promo.ID,
			Name:          promo.Name,
			DiscountType:  string(promo.Type),
			DiscountValue: promo.Value.InexactFloat64(),
		})
	}
	payload := contracts.NewPromotionPayload(promotionID, productID, refs)
	return c.publish(eventbus.TopicPromotions, eventType, eventbus.OriginKey(contracts.OriginProductPromotions, productID), payload)
}

func (c *Catalog) publish(topic, eventType, originKey string, payload any) error {
	if c.events == nil {
		return nil
	}
	c.sequences[originKey]++
	env, err := eventbus.NewEnvelope(topic, eventType, originKey, c.sequences[originKey], payload)
	if err != nil {
		return err
	}
	c.events.Append(env)
	return nil
}
