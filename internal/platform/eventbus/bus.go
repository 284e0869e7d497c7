package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrQueueClosed is returned by Receive once a queue has been closed.
var ErrQueueClosed = errors.New("queue closed")

// Publisher hands an envelope to the transport. A nil error means the
// transport accepted it.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Delivery is one attempt to hand an envelope to a consumer.
type Delivery interface {
	Envelope() Envelope
	// Ack confirms the consumer durably applied the event.
	Ack(ctx context.Context) error
	// Nack returns the event to the head of the queue for redelivery.
	Nack(ctx context.Context) error
}

// Queue yields deliveries for one subscriber, one at a time, in publish order
// per topic.
type Queue interface {
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

// Broker is a fanout transport: every queue bound to a topic receives every
// envelope published to it.
type Broker interface {
	Publisher
	Bind(queue string, topics ...string) (Queue, error)
}

// DeadLetter records an event that exhausted its retries.
type DeadLetter struct {
	Queue    string    `json:"queue"`
	Envelope Envelope  `json:"envelope"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// DeadLetterSink stores dead letters for operators.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, letter DeadLetter) error
}

// HandlerFunc applies one event. It must be idempotent.
type HandlerFunc func(ctx context.Context, env Envelope) error

// ProcessingError describes a handler failure on a specific event.
type ProcessingError struct {
	Queue    string
	Envelope Envelope
	Attempts int
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("queue %s: %s #%d (%s) failed after %d attempt(s): %v",
		e.Queue, e.Envelope.EventType, e.Envelope.OriginSequence, e.Envelope.OriginKey, e.Attempts, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that retrying cannot fix, such as an
// undecodable payload. The event is dead-lettered without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
