package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/application"
	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
)

const tracerName = "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/observability/service"

// Service decorates the order saga with tracing, logging, and metrics.
type Service struct {
	inner   ports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer injects a tracer implementation.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

// WithMeter injects the meter used to create service metrics instruments.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.metrics = newServiceMetrics(m)
	}
}

// New wires a decorator around the core service.
func New(inner ports.Service, opts ...Option) ports.Service {
	s := &Service{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		logger:  defaultLogger(),
		metrics: newServiceMetrics(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	return s
}

// CreateOrder runs the creation saga with instrumentation.
func (s *Service) CreateOrder(ctx context.Context, input ordertypes.CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "orders.CreateOrder",
		attribute.String("order.owner_id", input.OwnerID),
		attribute.Int("order.item_count", len(input.Items)),
		attribute.Bool("order.idempotent", input.IdempotencyKey != ""),
	)
	defer span.End()

	s.logInfo(ctx, "creating order", slog.String("owner_id", input.OwnerID), slog.Int("items", len(input.Items)))
	order, err := s.inner.CreateOrder(ctx, input)
	if err != nil {
		s.metrics.recordError(ctx, "create", err)
		return nil, s.handleError(ctx, span, err, "failed to create order", slog.String("owner_id", input.OwnerID))
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.metrics.recordCreated(ctx, order.Status)
	s.logInfo(ctx, "order created",
		slog.Int64("order_id", order.ID),
		slog.String("status", string(order.Status)),
		slog.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// Checkout charges an order with instrumentation.
func (s *Service) Checkout(ctx context.Context, input ordertypes.CheckoutInput) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "orders.Checkout",
		attribute.Int64("order.id", input.OrderID),
		attribute.String("payment.method", input.PaymentMethod),
	)
	defer span.End()

	s.logInfo(ctx, "checking out order", slog.Int64("order_id", input.OrderID))
	order, err := s.inner.Checkout(ctx, input)
	if err != nil {
		s.metrics.recordError(ctx, "checkout", err)
		return nil, s.handleError(ctx, span, err, "failed to check out order", slog.Int64("order_id", input.OrderID))
	}
	span.SetAttributes(attribute.String("payment.status", string(order.PaymentStatus)))
	s.metrics.recordCheckout(ctx, order.PaymentStatus)
	s.logInfo(ctx, "order checked out",
		slog.Int64("order_id", order.ID),
		slog.String("status", string(order.Status)),
		slog.String("payment_status", string(order.PaymentStatus)),
	)
	return order, nil
}

// RequestRefund refunds an order with instrumentation.
func (s *Service) RequestRefund(ctx context.Context, input ordertypes.RefundInput) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "orders.RequestRefund", attribute.Int64("order.id", input.OrderID))
	defer span.End()

	s.logInfo(ctx, "refunding order", slog.Int64("order_id", input.OrderID))
	order, err := s.inner.RequestRefund(ctx, input)
	if err != nil {
		s.metrics.recordError(ctx, "refund", err)
		return nil, s.handleError(ctx, span, err, "failed to refund order", slog.Int64("order_id", input.OrderID))
	}
	s.metrics.recordRefund(ctx)
	s.logInfo(ctx, "order refunded", slog.Int64("order_id", order.ID), slog.String("refund_status", string(order.RefundStatus)))
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "orders.GetOrder", attribute.Int64("order.id", id))
	defer span.End()

	order, err := s.inner.GetOrder(ctx, id)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to load order", slog.Int64("order_id", id))
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, input ordertypes.ListOrdersInput) ([]*domain.Order, error) {
	ctx, span := s.startSpan(ctx, "orders.ListOrders", attribute.String("order.owner_id", input.OwnerID))
	defer span.End()

	orders, err := s.inner.ListOrders(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to list orders")
	}
	span.SetAttributes(attribute.Int("order.result.count", len(orders)))
	return orders, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := s.tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (s *Service) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	level := slog.LevelWarn
	if errors.Is(err, application.ErrReconciliationGap) || errorKind(err) == "internal" {
		level = slog.LevelError
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()), slog.String("error_kind", errorKind(err)))
	}
	s.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (s *Service) handleError(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.logError(ctx, msg, err, attrs...)
	return err
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// errorKind buckets errors for metric attributes.
func errorKind(err error) string {
	switch {
	case errors.Is(err, application.ErrReconciliationGap):
		return "reconciliation_gap"
	case errors.Is(err, application.ErrInvalidInput):
		return "validation"
	case errors.Is(err, application.ErrOrderNotFound), errors.Is(err, application.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, application.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, application.ErrOrderAborted):
		return "aborted"
	case errors.Is(err, application.ErrAlreadyPaid),
		errors.Is(err, application.ErrInvalidState),
		errors.Is(err, application.ErrConflict),
		errors.Is(err, application.ErrStockRejected),
		errors.Is(err, application.ErrIdempotencyConflict):
		return "conflict"
	case errors.Is(err, application.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "internal"
}

type serviceMetrics struct {
	created  metric.Int64Counter
	checkout metric.Int64Counter
	refunds  metric.Int64Counter
	errors   metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	created, _ := m.Int64Counter("orders_created_total", metric.WithDescription("Number of orders created"))
	checkout, _ := m.Int64Counter("orders_checkout_total", metric.WithDescription("Number of checkout attempts by payment outcome"))
	refunds, _ := m.Int64Counter("orders_refund_total", metric.WithDescription("Number of completed refunds"))
	errs, _ := m.Int64Counter("orders_errors_total", metric.WithDescription("Number of failed order operations"))
	return serviceMetrics{created: created, checkout: checkout, refunds: refunds, errors: errs}
}

func (m serviceMetrics) recordCreated(ctx context.Context, status domain.Status) {
	addCounter(ctx, m.created, 1, attribute.String("order.status", string(status)))
}

func (m serviceMetrics) recordCheckout(ctx context.Context, status domain.PaymentStatus) {
	addCounter(ctx, m.checkout, 1, attribute.String("payment.status", string(status)))
}

func (m serviceMetrics) recordRefund(ctx context.Context) {
	addCounter(ctx, m.refunds, 1)
}

func (m serviceMetrics) recordError(ctx context.Context, operation string, err error) {
	addCounter(ctx, m.errors, 1,
		attribute.String("operation", operation),
		attribute.String("kind", errorKind(err)),
	)
}

func addCounter(ctx context.Context, counter metric.Int64Counter, value int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

var _ ports.Service = (*Service)(nil)
