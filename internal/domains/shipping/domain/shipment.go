package domain

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid shipment status transition")
	ErrInvalidShipment   = errors.New("invalid shipment")
)

// Carriers in the order CarrierFor picks them.
var Carriers = []string{"UPS", "FedEx", "DHL"}

var transitions = map[Status][]Status{
	StatusPending:   {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusDelivered, StatusCancelled},
}

// Shipment tracks the delivery of one paid order. Revision counts the events
// the shipment has emitted and orders them for consumers.
type Shipment struct {
	ID             string    `json:"id"`
	OrderID        int64     `json:"order_id"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	Status         Status    `json:"status"`
	Revision       int64     `json:"revision"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CarrierFor picks a carrier deterministically from the order id.
func CarrierFor(orderID int64) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(orderID, 10)))
	return Carriers[h.Sum32()%uint32(len(Carriers))]
}

// TrackingNumber formats n as TRK followed by six digits.
func TrackingNumber(n uint32) string {
	return fmt.Sprintf("TRK%06d", n%1_000_000)
}

// NewShipment creates a pending shipment.
func NewShipment(id string, orderID int64, trackingNumber string, now time.Time) (*Shipment, error) {
	if id == "" || orderID <= 0 || trackingNumber == "" {
		return nil, ErrInvalidShipment
	}
	return &Shipment{
		ID:             id,
		OrderID:        orderID,
		Carrier:        CarrierFor(orderID),
		TrackingNumber: trackingNumber,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *Shipment) CanTransition(next Status) bool {
	for _, allowed := range transitions[s.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the shipment to next.
func (s *Shipment) TransitionTo(next Status, now time.Time) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = now
	return nil
}

// Cancellable reports whether Cancel would succeed.
func (s *Shipment) Cancellable() bool {
	return s.CanTransition(StatusCancelled)
}

func (s *Shipment) Cancel(now time.Time) error {
	return s.TransitionTo(StatusCancelled, now)
}

// NextRevision bumps and returns the event revision.
func (s *Shipment) NextRevision() int64 {
	s.Revision++
	return s.Revision
}
