// Package kafka implements the bus contract on Kafka. Each queue is a consumer
// group, so every queue bound to a topic sees every record (fanout), and
// offsets are committed only on Ack.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

var (
	_ eventbus.Broker         = (*Broker)(nil)
	_ eventbus.Queue          = (*Queue)(nil)
	_ eventbus.DeadLetterSink = (*DeadLetterTopic)(nil)
)

const (
	headerEventID   = "event_id"
	headerEventType = "event_type"
	deadLetterTopic = "deadletter."
)

// ErrNoBrokers is returned when the broker list is empty.
var ErrNoBrokers = errors.New("kafka brokers not configured")

// Broker publishes envelopes and binds consumer-group queues.
type Broker struct {
	brokers []string
	writer  *kafkago.Writer
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewBroker creates a writer shared by all publishes. Records are keyed by
// origin key so one entity's events stay on one partition.
func NewBroker(brokers []string) (*Broker, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return &Broker{
		brokers: brokers,
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Publish writes env to its topic and waits for the broker ack.
func (b *Broker) Publish(ctx context.Context, env eventbus.Envelope) error {
	msg, err := toMessage(env)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, msg)
}

// Bind opens a consumer-group reader named after the queue.
func (b *Broker) Bind(queue string, topics ...string) (eventbus.Queue, error) {
	if queue == "" || len(topics) == 0 {
		return nil, errors.New("queue name and topics are required")
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     queue,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return &Queue{reader: reader}, nil
}

// DeadLetters returns a sink writing to "deadletter.<queue>".
func (b *Broker) DeadLetters() *DeadLetterTopic {
	return &DeadLetterTopic{writer: b.writer}
}

// Close flushes the writer.
func (b *Broker) Close() error {
	return b.writer.Close()
}

// Queue wraps a consumer-group reader.
type Queue struct {
	reader  *kafkago.Reader
	mu      sync.Mutex
	pending *kafkago.Message
}

// Receive returns a nacked record first, otherwise fetches the next one.
// Fetching does not commit.
func (q *Queue) Receive(ctx context.Context) (eventbus.Delivery, error) {
	q.mu.Lock()
	if q.pending != nil {
		msg := *q.pending
		q.pending = nil
		q.mu.Unlock()
		return q.delivery(msg), nil
	}
	q.mu.Unlock()
	msg, err := q.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return q.delivery(msg), nil
}

func (q *Queue) Close() error { return q.reader.Close() }

func (q *Queue) delivery(msg kafkago.Message) *delivery {
	return &delivery{queue: q, msg: msg, env: fromMessage(msg)}
}

type delivery struct {
	queue *Queue
	msg   kafkago.Message
	env   eventbus.Envelope
}

func (d *delivery) Envelope() eventbus.Envelope { return d.env }

func (d *delivery) Ack(ctx context.Context) error {
	return d.queue.reader.CommitMessages(ctx, d.msg)
}

func (d *delivery) Nack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	msg := d.msg
	d.queue.pending = &msg
	return nil
}

// DeadLetterTopic publishes dead letters as JSON records.
type DeadLetterTopic struct {
	writer *kafkago.Writer
}

func (s *DeadLetterTopic) DeadLetter(ctx context.Context, letter eventbus.DeadLetter) error {
	value, err := json.Marshal(letter)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafkago.Message{
		Topic: deadLetterTopic + letter.Queue,
		Key:   []byte(letter.Envelope.OriginKey),
		Value: value,
		Time:  letter.FailedAt,
	})
}

func toMessage(env eventbus.Envelope) (kafkago.Message, error) {
	if err := env.Validate(); err != nil {
		return kafkago.Message{}, err
	}
	value, err := eventbus.Marshal(env)
	if err != nil {
		return kafkago.Message{}, err
	}
	key := env.OriginKey
	if key == "" {
		key = env.ID
	}
	occurred := env.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return kafkago.Message{
		Topic: env.Topic,
		Key:   []byte(key),
		Value: value,
		Time:  occurred,
		Headers: []kafkago.Header{
			{Key: headerEventID, Value: []byte(env.ID)},
			{Key: headerEventType, Value: []byte(env.EventType)},
		},
	}, nil
}

// fromMessage never fails: an undecodable record is surfaced as an envelope
// carrying the raw bytes so the handler rejects it and it is dead-lettered.
func fromMessage(msg kafkago.Message) eventbus.Envelope {
	env, err := eventbus.Unmarshal(msg.Value)
	if err == nil {
		return env
	}
	env = eventbus.Envelope{
		Topic:      msg.Topic,
		OriginKey:  string(msg.Key),
		OccurredAt: msg.Time,
		Data:       json.RawMessage(nil),
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case headerEventID:
			env.ID = string(h.Value)
		case headerEventType:
			env.EventType = string(h.Value)
		}
	}
	if env.EventType == "" {
		env.EventType = "undecodable"
	}
	return env
}
