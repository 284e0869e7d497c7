package application

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Apurer/go-commerce-saga/internal/contracts"
	"github.com/Apurer/go-commerce-saga/internal/domains/shipping/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/shipping/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

// QueueName is the bus queue the shipping consumer binds.
const QueueName = "shipping"

var _ ports.Queries = (*Service)(nil)

// Service creates a shipment when an order is paid and cancels it when the
// order is refunded or cancelled.
type Service struct {
	store    ports.Store
	locks    keyedlock.Locker
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	tracking func() string
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

// WithIDs overrides shipment id and tracking number generation.
func WithIDs(newID, tracking func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
		if tracking != nil {
			s.tracking = tracking
		}
	}
}

func NewService(store ports.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		locks:    keyedlock.NewSharded(0),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		newID:    uuid.NewString,
		tracking: randomTrackingNumber,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) Topics() []string {
	return []string{eventbus.TopicOrders}
}

func (s *Service) Handle(ctx context.Context, env eventbus.Envelope) error {
	switch env.EventType {
	case eventbus.OrderPaid:
		return s.ship(ctx, env)
	case eventbus.OrderRefunded, eventbus.OrderCancelled:
		return s.cancel(ctx, env)
	}
	return nil
}

func (s *Service) ship(ctx context.Context, env eventbus.Envelope) error {
	payload, err := decodeOrder(env)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	changed, err := projection.Upsert(ctx, s.store, s.locks, orderKey(payload.OrderID), env, now, func(rec *projection.Projection[domain.Shipment], exists bool) error {
		if exists && rec.Entity.Status != domain.StatusCancelled {
			return projection.ErrSkip
		}
		shipment, err := domain.NewShipment(s.newID(), payload.OrderID, s.tracking(), now)
		if err != nil {
			return eventbus.Permanent(err)
		}
		if err := shipment.TransitionTo(domain.StatusShipped, now); err != nil {
			return err
		}
		rec.Entity = *shipment
		return stage(rec, eventbus.ShipmentCreated)
	})
	if err == nil && changed {
		s.logger.InfoContext(ctx, "shipment created", slog.Int64("order_id", payload.OrderID))
	}
	return err
}

func (s *Service) cancel(ctx context.Context, env eventbus.Envelope) error {
	payload, err := decodeOrder(env)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	changed, err := projection.Upsert(ctx, s.store, s.locks, orderKey(payload.OrderID), env, now, func(rec *projection.Projection[domain.Shipment], exists bool) error {
		if !exists || !rec.Entity.Cancellable() {
			return projection.ErrSkip
		}
		if err := rec.Entity.Cancel(now); err != nil {
			return err
		}
		return stage(rec, eventbus.ShipmentCancelled)
	})
	if err == nil && changed {
		s.logger.InfoContext(ctx, "shipment cancelled", slog.Int64("order_id", payload.OrderID), slog.String("event_type", env.EventType))
	}
	return err
}

func (s *Service) GetByOrder(ctx context.Context, orderID int64) (*domain.Shipment, error) {
	rec, err := s.store.Load(ctx, orderKey(orderID))
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Metadata.Deleted || rec.Entity.ID == "" {
		return nil, fmt.Errorf("%w: order %d", ports.ErrNotFound, orderID)
	}
	shipment := rec.Entity
	return &shipment, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Shipment, error) {
	records, err := s.store.ListLive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Shipment, 0, len(records))
	for _, rec := range records {
		if rec.Entity.ID != "" {
			out = append(out, rec.Entity)
		}
	}
	slices.SortFunc(out, func(a, b domain.Shipment) int { return cmp.Compare(a.OrderID, b.OrderID) })
	return out, nil
}

// Advance moves a shipment along the carrier lifecycle. It emits no event.
func (s *Service) Advance(ctx context.Context, orderID int64, status domain.Status) (*domain.Shipment, error) {
	key := orderKey(orderID)
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Metadata.Deleted || rec.Entity.ID == "" {
		return nil, fmt.Errorf("%w: order %d", ports.ErrNotFound, orderID)
	}
	now := s.now().UTC()
	if err := rec.Entity.TransitionTo(status, now); err != nil {
		return nil, err
	}
	rec.Metadata.UpdatedAt = now
	if err := s.store.Save(ctx, key, rec); err != nil {
		return nil, err
	}
	shipment := rec.Entity
	return &shipment, nil
}

func stage(rec *projection.Projection[domain.Shipment], eventType string) error {
	shipment := &rec.Entity
	env, err := eventbus.NewEnvelope(
		eventbus.TopicShipments,
		eventType,
		eventbus.OriginKey(contracts.OriginShipment, shipment.ID),
		shipment.NextRevision(),
		contracts.ShipmentPayload{
			ShipmentID:     shipment.ID,
			OrderID:        shipment.OrderID,
			Status:         string(shipment.Status),
			Carrier:        shipment.Carrier,
			TrackingNumber: shipment.TrackingNumber,
		},
	)
	if err != nil {
		return err
	}
	rec.Stage(env)
	return nil
}

func decodeOrder(env eventbus.Envelope) (contracts.OrderPayload, error) {
	var payload contracts.OrderPayload
	if err := env.Decode(&payload); err != nil {
		return payload, eventbus.Permanent(err)
	}
	if payload.OrderID <= 0 {
		return payload, eventbus.Permanent(fmt.Errorf("%s event without order_id", env.EventType))
	}
	return payload, nil
}

func orderKey(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}

func randomTrackingNumber() string {
	id := uuid.New()
	return domain.TrackingNumber(binary.BigEndian.Uint32(id[:4]))
}
