package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

var ErrMissingIdentity = errors.New("audit entry needs an origin key or an event id")

// Entry is one immutable audit log line.
type Entry struct {
	ID             string          `json:"id"`
	Topic          string          `json:"topic"`
	EventType      string          `json:"event_type"`
	OriginKey      string          `json:"origin_key,omitempty"`
	OriginSequence int64           `json:"origin_sequence"`
	EventID        string          `json:"event_id"`
	Payload        json.RawMessage `json:"payload"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// NewEntry derives an entry from an envelope. Its ID identifies the business
// fact, so a redelivered or re-published event maps to the same entry.
func NewEntry(env eventbus.Envelope, recordedAt time.Time) (Entry, error) {
	id, err := Identity(env)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:             id,
		Topic:          env.Topic,
		EventType:      env.EventType,
		OriginKey:      env.OriginKey,
		OriginSequence: env.OriginSequence,
		EventID:        env.ID,
		Payload:        append(json.RawMessage(nil), env.Data...),
		RecordedAt:     recordedAt.UTC(),
	}, nil
}

// Identity is origin_key#sequence#event_type, or the event id for events
// without an origin.
func Identity(env eventbus.Envelope) (string, error) {
	if env.OriginKey != "" {
		return fmt.Sprintf("%s#%d#%s", env.OriginKey, env.OriginSequence, env.EventType), nil
	}
	if env.ID != "" {
		return "event#" + env.ID, nil
	}
	return "", ErrMissingIdentity
}
