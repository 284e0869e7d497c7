package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/platform/retry"
)

// Consumer drains one queue strictly sequentially. An event is acked only
// after its handler returned nil, or after it was recorded as a dead letter.
type Consumer struct {
	name    string
	queue   Queue
	handler HandlerFunc
	sink    DeadLetterSink
	policy  retry.Policy
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
	idle    time.Duration
}

type ConsumerOption func(*Consumer)

func WithRetryPolicy(p retry.Policy) ConsumerOption {
	return func(c *Consumer) { c.policy = p }
}

func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

func WithDeadLetterSink(sink DeadLetterSink) ConsumerOption {
	return func(c *Consumer) { c.sink = sink }
}

func WithClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) {
		if now != nil {
			c.now = now
		}
	}
}

// NewConsumer binds a handler to a queue.
func NewConsumer(name string, queue Queue, handler HandlerFunc, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		name:    name,
		queue:   queue,
		handler: handler,
		policy:  retry.DefaultPolicy,
		logger:  slog.Default(),
		now:     time.Now,
		idle:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run processes deliveries until ctx is done or the queue is closed.
func (c *Consumer) Run(ctx context.Context) error {
	if c.queue == nil || c.handler == nil {
		return errors.New("consumer not configured")
	}
	c.logger.Info("consumer started", slog.String("queue", c.name))
	defer c.logger.Info("consumer stopped", slog.String("queue", c.name))
	for {
		delivery, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return nil
			}
			c.logger.Warn("receive failed", slog.String("queue", c.name), slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.idle):
			}
			continue
		}
		c.Process(ctx, delivery)
	}
}

// Process applies a single delivery. It never returns an error: failures end
// in a dead letter or, when even that fails, a redelivery.
func (c *Consumer) Process(ctx context.Context, d Delivery) {
	env := d.Envelope()
	started := c.now()
	attempts := 0
	err := retry.Do(ctx, c.policy, func(err error) bool { return !IsPermanent(err) }, func(ctx context.Context) error {
		attempts++
		return c.handler(ctx, env)
	}, func(err error, attempt int, wait time.Duration) {
		c.metrics.failed(c.name, env.Topic)
		c.logger.Warn("handler failed, retrying",
			slog.String("queue", c.name),
			slog.String("event_type", env.EventType),
			slog.String("origin_key", env.OriginKey),
			slog.Int64("origin_sequence", env.OriginSequence),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	})
	if err == nil {
		c.ack(ctx, d, env)
		c.metrics.observe(c.name, env.Topic, "applied", started)
		return
	}
	c.metrics.failed(c.name, env.Topic)
	if ctx.Err() != nil {
		c.nack(d, env)
		c.metrics.observe(c.name, env.Topic, "requeued", started)
		return
	}

	perr := &ProcessingError{Queue: c.name, Envelope: env, Attempts: attempts, Err: err}
	c.logger.Error("event processing failed", slog.String("queue", c.name), slog.String("error", perr.Error()))
	if c.sink == nil {
		c.logger.Error("no dead-letter sink configured, dropping event",
			slog.String("queue", c.name), slog.String("event_id", env.ID))
		c.ack(ctx, d, env)
		c.metrics.observe(c.name, env.Topic, "dropped", started)
		return
	}
	letter := DeadLetter{Queue: c.name, Envelope: env, Error: err.Error(), Attempts: attempts, FailedAt: c.now().UTC()}
	if dlErr := c.sink.DeadLetter(ctx, letter); dlErr != nil {
		c.logger.Error("dead-letter write failed, requeueing event",
			slog.String("queue", c.name), slog.String("event_id", env.ID), slog.String("error", dlErr.Error()))
		c.nack(d, env)
		c.metrics.observe(c.name, env.Topic, "requeued", started)
		return
	}
	c.metrics.deadLettered(c.name, env.Topic)
	c.ack(ctx, d, env)
	c.metrics.observe(c.name, env.Topic, "dead_lettered", started)
}

func (c *Consumer) ack(ctx context.Context, d Delivery, env Envelope) {
	if err := d.Ack(ctx); err != nil {
		c.logger.Warn("ack failed, event will be redelivered",
			slog.String("queue", c.name), slog.String("event_id", env.ID), slog.String("error", err.Error()))
	}
}

func (c *Consumer) nack(d Delivery, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Nack(ctx); err != nil {
		c.logger.Warn("nack failed", slog.String("queue", c.name), slog.String("event_id", env.ID), slog.String("error", err.Error()))
	}
}
