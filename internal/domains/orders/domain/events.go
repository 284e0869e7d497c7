package domain

import "time"

// Event is a state change that must reach the orders topic.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent provides common event metadata.
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// OrderCreated is raised once every item's stock was taken.
type OrderCreated struct {
	BaseEvent
	OrderID int64
}

func (e OrderCreated) EventName() string { return "order_created" }

// OrderPaid is raised after a successful charge.
type OrderPaid struct {
	BaseEvent
	OrderID int64
	Method  string
}

func (e OrderPaid) EventName() string { return "order_paid" }

// OrderPaymentFailed is raised when the gateway declines a charge.
type OrderPaymentFailed struct {
	BaseEvent
	OrderID int64
	Reason  string
}

func (e OrderPaymentFailed) EventName() string { return "order_payment_failed" }

// OrderRefunded is raised once a refund credited all stock back.
type OrderRefunded struct {
	BaseEvent
	OrderID int64
	Reason  string
}

func (e OrderRefunded) EventName() string { return "order_refunded" }

// OrderCancelled is raised when creation is aborted.
type OrderCancelled struct {
	BaseEvent
	OrderID int64
	Reason  string
}

func (e OrderCancelled) EventName() string { return "order_cancelled" }
