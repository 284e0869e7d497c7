// Package eventbus defines the event envelope, the delivery contract shared by
// every producer and consumer, and the sequential consumer loop.
package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicOrders     = "orders"
	TopicProducts   = "products"
	TopicPromotions = "promotions"
	TopicShipments  = "shipments"
	TopicPayments   = "payments"
)

// Event types per topic.
const (
	OrderCreated       = "order_created"
	OrderPaid          = "order_paid"
	OrderPaymentFailed = "order_payment_failed"
	OrderRefunded      = "order_refunded"
	OrderCancelled     = "order_cancelled"

	ProductCreated      = "product_created"
	ProductUpdated      = "product_updated"
	ProductStockUpdated = "product_stock_updated"
	ProductDeleted      = "product_deleted"

	PromotionCreated = "promotion_created"
	PromotionUpdated = "promotion_updated"
	PromotionDeleted = "promotion_deleted"

	ShipmentCreated   = "shipment_created"
	ShipmentCancelled = "shipment_cancelled"
)

// AllTopics lists every fanout channel.
func AllTopics() []string {
	return []string{TopicOrders, TopicProducts, TopicPromotions, TopicShipments, TopicPayments}
}

var (
	ErrMissingTopic     = errors.New("event topic is required")
	ErrMissingEventType = errors.New("event type is required")
)

// Envelope is the immutable wire shape of a domain event. OriginKey names the
// publishing entity (for example "order:42"); OriginSequence increases
// monotonically per OriginKey.
type Envelope struct {
	ID             string          `json:"event_id"`
	Topic          string          `json:"topic"`
	EventType      string          `json:"event_type"`
	OriginKey      string          `json:"origin_key,omitempty"`
	OriginSequence int64           `json:"origin_sequence"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Data           json.RawMessage `json:"data"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(topic, eventType, originKey string, sequence int64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		ID:             uuid.NewString(),
		Topic:          topic,
		EventType:      eventType,
		OriginKey:      originKey,
		OriginSequence: sequence,
		OccurredAt:     time.Now().UTC(),
		Data:           data,
	}
	return env, env.Validate()
}

// Validate checks the envelope can be routed.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Topic) == "" {
		return ErrMissingTopic
	}
	if strings.TrimSpace(e.EventType) == "" {
		return ErrMissingEventType
	}
	return nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s event has no data", e.EventType)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// Marshal encodes the envelope for a transport.
func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an envelope produced by Marshal.
func Unmarshal(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, env.Validate()
}

// OriginKey joins an entity kind and identifier.
func OriginKey(kind string, id any) string {
	return fmt.Sprintf("%s:%v", kind, id)
}
