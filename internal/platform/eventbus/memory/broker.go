// Package memory is an in-process fanout transport for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

var (
	_ eventbus.Broker         = (*Broker)(nil)
	_ eventbus.Queue          = (*Queue)(nil)
	_ eventbus.DeadLetterSink = (*DeadLetters)(nil)
)

// ErrStaleDelivery is returned when a delivery is settled twice.
var ErrStaleDelivery = errors.New("delivery already settled")

// Broker fans each published envelope out to every queue bound to its topic.
type Broker struct {
	mu       sync.RWMutex
	queues   map[string]*Queue
	bindings map[string][]*Queue
}

// NewBroker builds an empty broker.
func NewBroker() *Broker {
	return &Broker{queues: map[string]*Queue{}, bindings: map[string][]*Queue{}}
}

// Publish enqueues env on every bound queue. Publishing to a topic without
// subscribers succeeds and drops the event.
func (b *Broker) Publish(ctx context.Context, env eventbus.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	targets := append([]*Queue(nil), b.bindings[env.Topic]...)
	b.mu.RUnlock()
	for _, q := range targets {
		q.push(env)
	}
	return nil
}

// Bind returns the named queue, creating it on first use, and subscribes it
// to topics. Binding the same name twice yields the same queue.
func (b *Broker) Bind(name string, topics ...string) (eventbus.Queue, error) {
	if name == "" {
		return nil, errors.New("queue name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = newQueue(name)
		b.queues[name] = q
	}
	for _, topic := range topics {
		if q.bound(topic) {
			continue
		}
		q.topics = append(q.topics, topic)
		b.bindings[topic] = append(b.bindings[topic], q)
	}
	return q, nil
}

// Queue is a FIFO with at most one delivery in flight.
type Queue struct {
	name     string
	topics   []string
	mu       sync.Mutex
	items    []*message
	inflight *message
	closed   bool
	changed  chan struct{}
}

type message struct {
	env      eventbus.Envelope
	attempts int
}

func newQueue(name string) *Queue {
	return &Queue{name: name, changed: make(chan struct{})}
}

func (q *Queue) bound(topic string) bool {
	for _, t := range q.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (q *Queue) push(env eventbus.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, &message{env: env})
	q.broadcastLocked()
}

// Receive waits for the next envelope. It blocks while a previous delivery is
// unsettled, which keeps processing strictly sequential.
func (q *Queue) Receive(ctx context.Context) (eventbus.Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, eventbus.ErrQueueClosed
		}
		if q.inflight == nil && len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			m.attempts++
			q.inflight = m
			q.mu.Unlock()
			return &delivery{queue: q, msg: m}, nil
		}
		wait := q.changed
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Close stops the queue. Pending envelopes are discarded.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.broadcastLocked()
	return nil
}

// RequeueInFlight returns an unsettled delivery to the head of the queue, as
// the broker would after a consumer crash.
func (q *Queue) RequeueInFlight() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight == nil {
		return
	}
	q.items = append([]*message{q.inflight}, q.items...)
	q.inflight = nil
	q.broadcastLocked()
}

// Len reports envelopes waiting or in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if q.inflight != nil {
		n++
	}
	return n
}

func (q *Queue) settle(m *message, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight != m {
		return ErrStaleDelivery
	}
	q.inflight = nil
	if requeue && !q.closed {
		q.items = append([]*message{m}, q.items...)
	}
	q.broadcastLocked()
	return nil
}

func (q *Queue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

type delivery struct {
	queue *Queue
	msg   *message
}

func (d *delivery) Envelope() eventbus.Envelope { return d.msg.env }

// Attempt is the delivery count for this envelope, starting at 1.
func (d *delivery) Attempt() int { return d.msg.attempts }

func (d *delivery) Ack(context.Context) error { return d.queue.settle(d.msg, false) }

func (d *delivery) Nack(context.Context) error { return d.queue.settle(d.msg, true) }

// DeadLetters keeps dead letters in memory.
type DeadLetters struct {
	mu      sync.RWMutex
	letters []eventbus.DeadLetter
}

func NewDeadLetters() *DeadLetters { return &DeadLetters{} }

func (s *DeadLetters) DeadLetter(_ context.Context, letter eventbus.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, letter)
	return nil
}

// List returns a copy of the recorded letters, oldest first.
func (s *DeadLetters) List() []eventbus.DeadLetter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]eventbus.DeadLetter(nil), s.letters...)
}
