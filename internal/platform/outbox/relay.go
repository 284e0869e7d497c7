package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/retry"
)

// Relay forwards pending outbox records to a publisher. A record is marked
// published only after the publisher accepted it, so a crash in between
// republishes it (at-least-once).
type Relay struct {
	store     Store
	publisher eventbus.Publisher
	logger    *slog.Logger
	policy    retry.Policy
	interval  time.Duration
	batchSize int
	now       func() time.Time
	metrics   *relayMetrics
}

type RelayOption func(*Relay)

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithRetryPolicy(p retry.Policy) RelayOption {
	return func(r *Relay) { r.policy = p }
}

func WithClock(now func() time.Time) RelayOption {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegisterer exposes relay counters to Prometheus.
func WithRegisterer(reg prometheus.Registerer) RelayOption {
	return func(r *Relay) { r.metrics = newRelayMetrics(reg) }
}

// NewRelay wires a store to a publisher.
func NewRelay(store Store, publisher eventbus.Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		policy:    retry.DefaultPolicy,
		interval:  500 * time.Millisecond,
		batchSize: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("outbox flush incomplete", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes pending records in order until the outbox is empty or a
// publish fails. It stops at the first failure so later events of the same
// entity are never delivered ahead of earlier ones.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	if r.store == nil || r.publisher == nil {
		return 0, errors.New("outbox relay not configured")
	}
	published := 0
	for {
		batch, err := r.store.FetchPending(ctx, r.batchSize)
		if err != nil {
			return published, err
		}
		if len(batch) == 0 {
			return published, nil
		}
		for _, rec := range batch {
			env := rec.Envelope
			err := retry.Do(ctx, r.policy, nil, func(ctx context.Context) error {
				return r.publisher.Publish(ctx, env)
			})
			if err != nil {
				r.metrics.failed(env.Topic)
				if markErr := r.store.MarkFailed(ctx, rec.Position, err.Error()); markErr != nil {
					err = errors.Join(err, markErr)
				}
				r.logger.Error("outbox publish failed",
					slog.Int64("position", rec.Position),
					slog.String("topic", env.Topic),
					slog.String("event_type", env.EventType),
					slog.String("origin_key", env.OriginKey),
					slog.String("error", err.Error()))
				return published, err
			}
			if err := r.store.MarkPublished(ctx, rec.Position, r.now().UTC()); err != nil {
				return published, err
			}
			r.metrics.published(env.Topic)
			published++
		}
		if len(batch) < r.batchSize {
			return published, nil
		}
	}
}

type relayMetrics struct {
	publishedTotal *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
}

func newRelayMetrics(reg prometheus.Registerer) *relayMetrics {
	m := &relayMetrics{
		publishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox records forwarded to the bus.",
		}, []string{"topic"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "outbox",
			Name:      "publish_failures_total",
			Help:      "Outbox records that could not be forwarded after retries.",
		}, []string{"topic"}),
	}
	if reg != nil {
		reg.MustRegister(m.publishedTotal, m.failuresTotal)
	}
	return m
}

func (m *relayMetrics) published(topic string) {
	if m != nil {
		m.publishedTotal.WithLabelValues(topic).Inc()
	}
}

func (m *relayMetrics) failed(topic string) {
	if m != nil {
		m.failuresTotal.WithLabelValues(topic).Inc()
	}
}
