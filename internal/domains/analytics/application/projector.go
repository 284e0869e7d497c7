package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Apurer/go-commerce-saga/internal/contracts"
	"github.com/Apurer/go-commerce-saga/internal/domains/analytics/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/analytics/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

// QueueName is the bus queue the analytics consumer binds.
const QueueName = "analytics"

// ErrMissingPromotions rejects promotion events without an explicit list.
var ErrMissingPromotions = errors.New("promotion event has no active_promotions list")

var _ ports.Projector = (*Projector)(nil)

// Projector folds order, product and promotion snapshots into summaries.
type Projector struct {
	orders   ports.OrderStore
	products ports.ProductStore
	locks    keyedlock.Locker
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Projector)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithLocker(locks keyedlock.Locker) Option {
	return func(p *Projector) {
		if locks != nil {
			p.locks = locks
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Projector) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProjector(orders ports.OrderStore, products ports.ProductStore, opts ...Option) *Projector {
	p := &Projector{
		orders:   orders,
		products: products,
		locks:    keyedlock.NewSharded(0),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Projector) Topics() []string {
	return []string{eventbus.TopicOrders, eventbus.TopicProducts, eventbus.TopicPromotions}
}

// Handle applies one event. Unknown event types are ignored.
func (p *Projector) Handle(ctx context.Context, env eventbus.Envelope) error {
	switch env.Topic {
	case eventbus.TopicOrders:
		return p.applyOrder(ctx, env)
	case eventbus.TopicProducts:
		return p.applyProduct(ctx, env)
	case eventbus.TopicPromotions:
		return p.applyPromotions(ctx, env)
	}
	p.logger.DebugContext(ctx, "analytics ignoring topic", slog.String("topic", env.Topic))
	return nil
}

func (p *Projector) applyOrder(ctx context.Context, env eventbus.Envelope) error {
	var payload contracts.OrderPayload
	if err := env.Decode(&payload); err != nil {
		return eventbus.Permanent(err)
	}
	if payload.OrderID == 0 {
		return eventbus.Permanent(fmt.Errorf("%s event without order_id", env.EventType))
	}
	key := strconv.FormatInt(payload.OrderID, 10)
	_, err := projection.Upsert(ctx, p.orders, p.locks, key, env, p.now(), func(rec *projection.Projection[domain.OrderSummary], _ bool) error {
		rec.Entity = domain.OrderSummary{
			OrderID:       payload.OrderID,
			OwnerID:       payload.OwnerID,
			Total:         money(payload.Total),
			Status:        payload.Status,
			PaymentStatus: payload.PaymentStatus,
			RefundStatus:  payload.RefundStatus,
			ItemCount:     itemCount(payload.Items),
		}
		return nil
	})
	return err
}

func (p *Projector) applyProduct(ctx context.Context, env eventbus.Envelope) error {
	var payload contracts.ProductPayload
	if err := env.Decode(&payload); err != nil {
		return eventbus.Permanent(err)
	}
	if payload.ID == 0 {
		return eventbus.Permanent(fmt.Errorf("%s event without id", env.EventType))
	}
	key := strconv.FormatInt(payload.ID, 10)
	_, err := projection.Upsert(ctx, p.products, p.locks, key, env, p.now(), func(rec *projection.Projection[domain.ProductSummary], exists bool) error {
		if env.EventType == eventbus.ProductDeleted {
			if !exists {
				return projection.ErrSkip
			}
			rec.Metadata.Deleted = true
			return nil
		}
		summary := rec.Entity
		summary.ProductID = payload.ID
		summary.Name = payload.Name
		summary.Price = money(payload.Price)
		summary.Stock = payload.Stock
		summary.Category = ""
		if payload.Category != nil {
			summary.Category = payload.Category.Name
		}
		summary.Tags = make([]string, 0, len(payload.Tags))
		for _, tag := range payload.Tags {
			summary.Tags = append(summary.Tags, tag.Name)
		}
		if summary.ActivePromotions == nil {
			summary.ActivePromotions = []domain.PromotionSummary{}
		}
		rec.Entity = summary
		return nil
	})
	return err
}

// applyPromotions overwrites the product's active promotions with the list
// carried by the event. A promotion for a product not seen yet creates a stub
// summary that later product events fill in.
func (p *Projector) applyPromotions(ctx context.Context, env eventbus.Envelope) error {
	var payload contracts.PromotionPayload
	if err := env.Decode(&payload); err != nil {
		return eventbus.Permanent(err)
	}
	if payload.ProductID == 0 {
		return eventbus.Permanent(fmt.Errorf("%s event without product_id", env.EventType))
	}
	if payload.ActivePromotions == nil {
		return eventbus.Permanent(ErrMissingPromotions)
	}
	key := strconv.FormatInt(payload.ProductID, 10)
	_, err := projection.Upsert(ctx, p.products, p.locks, key, env, p.now(), func(rec *projection.Projection[domain.ProductSummary], _ bool) error {
		rec.Entity.ProductID = payload.ProductID
		active := make([]domain.PromotionSummary, 0, len(*payload.ActivePromotions))
		for _, promo := range *payload.ActivePromotions {
			active = append(active, domain.PromotionSummary{
				ID:            promo.ID,
				Name:          promo.Name,
				DiscountType:  promo.DiscountType,
				DiscountValue: decimal.NewFromFloat(promo.DiscountValue),
			})
		}
		rec.Entity.ActivePromotions = active
		return nil
	})
	return err
}

func itemCount(items []contracts.OrderItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
