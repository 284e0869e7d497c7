package application

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/domains/audit/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/audit/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

// QueueName is the bus queue the audit consumer binds.
const QueueName = "audit"

// DefaultListLimit caps List when callers pass no limit.
const DefaultListLimit = 100

var _ ports.Queries = (*Service)(nil)

// Service records every event on every topic and serves the log.
type Service struct {
	store  ports.Store
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
	return eventbus.AllTopics()
}

// Handle appends env to the log. Duplicates are dropped by the store.
func (s *Service) Handle(ctx context.Context, env eventbus.Envelope) error {
	entry, err := domain.NewEntry(env, s.now())
	if err != nil {
		return eventbus.Permanent(err)
	}
	inserted, err := s.store.Append(ctx, entry)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.DebugContext(ctx, "audit entry already recorded", slog.String("id", entry.ID))
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.List(ctx, limit)
}

func (s *Service) ListByTopic(ctx context.Context, topic string) ([]domain.Entry, error) {
	return s.store.ListByTopic(ctx, strings.TrimSpace(topic))
}
