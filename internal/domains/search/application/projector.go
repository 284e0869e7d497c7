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
	"github.com/Apurer/go-commerce-saga/internal/domains/search/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/search/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

// QueueName is the bus queue the search consumer binds.
const QueueName = "search"

var ErrMissingPromotions = errors.New("promotion event has no active_promotions list")

var _ ports.Queries = (*Service)(nil)

// Service indexes product and promotion snapshots and answers searches.
type Service struct {
	store  ports.Store
	locks  keyedlock.Locker
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithLocker(locks keyedlock.Locker) Option {
	return func(s *Service) {
		if locks != nil {
			s.locks = locks
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store ports.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locks:  keyedlock.NewSharded(0),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) Topics() []string {
	return []string{eventbus.TopicProducts, eventbus.TopicPromotions}
}

func (s *Service) Handle(ctx context.Context, env eventbus.Envelope) error {
	switch env.Topic {
	case eventbus.TopicProducts:
		return s.applyProduct(ctx, env)
	case eventbus.TopicPromotions:
		return s.applyPromotions(ctx, env)
	}
	return nil
}

func (s *Service) Search(ctx context.Context, q domain.Query) ([]domain.Entry, error) {
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return []domain.Entry{}, nil
	}
	return s.store.Search(ctx, q)
}

func (s *Service) applyProduct(ctx context.Context, env eventbus.Envelope) error {
	var payload contracts.ProductPayload
	if err := env.Decode(&payload); err != nil {
		return eventbus.Permanent(err)
	}
	if payload.ID == 0 {
		return eventbus.Permanent(fmt.Errorf("%s event without id", env.EventType))
	}
	key := strconv.FormatInt(payload.ID, 10)
	changed, err := projection.Upsert(ctx, s.store, s.locks, key, env, s.now(), func(rec *projection.Projection[domain.Entry], exists bool) error {
		if env.EventType == eventbus.ProductDeleted {
			if !exists {
				return projection.ErrSkip
			}
			rec.Metadata.Deleted = true
			return nil
		}
		entry := rec.Entity
		entry.ID = payload.ID
		entry.Name = payload.Name
		entry.Description = payload.Description
		entry.Price = decimal.NewFromFloat(payload.Price).Round(2)
		entry.Stock = payload.Stock
		entry.Category = nil
		if payload.Category != nil {
			entry.Category = &domain.Category{ID: payload.Category.ID, Name: payload.Category.Name}
		}
		entry.Tags = make([]domain.Tag, 0, len(payload.Tags))
		for _, tag := range payload.Tags {
			entry.Tags = append(entry.Tags, domain.Tag{ID: tag.ID, Name: tag.Name})
		}
		if entry.Promotions == nil {
			entry.Promotions = []domain.Promotion{}
		}
		rec.Entity = entry
		return nil
	})
	if err == nil && changed {
		s.logger.DebugContext(ctx, "search entry indexed", slog.Int64("product_id", payload.ID), slog.String("event_type", env.EventType))
	}
	return err
}

func (s *Service) applyPromotions(ctx context.Context, env eventbus.Envelope) error {
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
	_, err := projection.Upsert(ctx, s.store, s.locks, key, env, s.now(), func(rec *projection.Projection[domain.Entry], _ bool) error {
		rec.Entity.ID = payload.ProductID
		promos := make([]domain.Promotion, 0, len(*payload.ActivePromotions))
		for _, p := range *payload.ActivePromotions {
			promos = append(promos, domain.Promotion{
				ID:            p.ID,
				Name:          p.Name,
				DiscountType:  p.DiscountType,
				DiscountValue: decimal.NewFromFloat(p.DiscountValue),
			})
		}
		rec.Entity.Promotions = promos
		return nil
	})
	return err
}
