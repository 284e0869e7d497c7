package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/contracts"
	"github.com/Apurer/go-commerce-saga/internal/domains/insights/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/insights/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

// QueueName is the bus queue the insights consumer binds.
const QueueName = "insights"

var _ ports.Projector = (*Projector)(nil)

// Projector keeps per-product demand windows from created orders and
// per-owner purchase histories from paid ones.
type Projector struct {
	forecasts ports.ForecastStore
	histories ports.HistoryStore
	locks     keyedlock.Locker
	logger    *slog.Logger
	now       func() time.Time
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

func NewProjector(forecasts ports.ForecastStore, histories ports.HistoryStore, opts ...Option) *Projector {
	p := &Projector{
		forecasts: forecasts,
		histories: histories,
		locks:     keyedlock.NewSharded(0),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Projector) Topics() []string {
	return []string{eventbus.TopicOrders, eventbus.TopicProducts}
}

// Handle applies one event. Unknown topics and event types are ignored.
func (p *Projector) Handle(ctx context.Context, env eventbus.Envelope) error {
	switch env.Topic {
	case eventbus.TopicOrders:
		return p.applyOrder(ctx, env)
	case eventbus.TopicProducts:
		return p.applyProduct(ctx, env)
	}
	p.logger.DebugContext(ctx, "insights ignoring topic", slog.String("topic", env.Topic))
	return nil
}

func (p *Projector) applyOrder(ctx context.Context, env eventbus.Envelope) error {
	switch env.EventType {
	case eventbus.OrderCreated, eventbus.OrderPaid, eventbus.OrderRefunded, eventbus.OrderCancelled:
	default:
		return nil
	}
	var payload contracts.OrderPayload
	if err := env.Decode(&payload); err != nil {
		return eventbus.Permanent(err)
	}
	if payload.OrderID == 0 {
		return eventbus.Permanent(fmt.Errorf("%s event without order_id", env.EventType))
	}
	if env.EventType == eventbus.OrderCreated {
		return p.observeDemand(ctx, env, payload)
	}
	if strings.TrimSpace(payload.OwnerID) == "" {
		return eventbus.Permanent(fmt.Errorf("%s event for order %d without owner_id", env.EventType, payload.OrderID))
	}
	_, err := projection.Upsert(ctx, p.histories, p.locks, payload.OwnerID, env, p.now(), func(rec *projection.Projection[domain.PurchaseHistory], _ bool) error {
		rec.Entity.OwnerID = payload.OwnerID
		if env.EventType == eventbus.OrderPaid {
			rec.Entity.Record(payload.OrderID, productIDs(payload.Items))
			return nil
		}
		if !rec.Entity.Forget(payload.OrderID) {
			return projection.ErrSkip
		}
		return nil
	})
	return err
}

// observeDemand adds the order to the window of every product it contains.
// Lines for the same product count as one observation.
func (p *Projector) observeDemand(ctx context.Context, env eventbus.Envelope, payload contracts.OrderPayload) error {
	var order []int64
	quantities := map[int64]int{}
	for _, item := range payload.Items {
		if _, seen := quantities[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	obsAt := env.OccurredAt.UTC()
	for _, productID := range order {
		obs := domain.Observation{OrderID: payload.OrderID, Quantity: quantities[productID], OccurredAt: obsAt}
		key := strconv.FormatInt(productID, 10)
		_, err := projection.Upsert(ctx, p.forecasts, p.locks, key, env, p.now(), func(rec *projection.Projection[domain.Forecast], _ bool) error {
			if !rec.Entity.Observe(obs) {
				return projection.ErrSkip
			}
			rec.Entity.ProductID = productID
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
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
	_, err := projection.Upsert(ctx, p.forecasts, p.locks, key, env, p.now(), func(rec *projection.Projection[domain.Forecast], exists bool) error {
		if env.EventType == eventbus.ProductDeleted {
			if !exists {
				return projection.ErrSkip
			}
			rec.Metadata.Deleted = true
			return nil
		}
		rec.Entity.ProductID = payload.ID
		rec.Entity.ProductName = payload.Name
		return nil
	})
	return err
}

func productIDs(items []contracts.OrderItem) []int64 {
	out := make([]int64, 0, len(items))
	for _, item := range items {
		out = append(out, item.ProductID)
	}
	return out
}
