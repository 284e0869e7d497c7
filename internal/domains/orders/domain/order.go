package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the saga progression of an order.
type Status string

const (
	StatusPending         Status = "pending"
	StatusStockReserved   Status = "stock_reserved"
	StatusPriced          Status = "priced"
	StatusCommitted       Status = "committed"
	StatusPaymentFailed   Status = "payment_failed"
	StatusPaid            Status = "paid"
	StatusFulfilled       Status = "fulfilled"
	StatusRefundRequested Status = "refund_requested"
	StatusCancelled       Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentNone   PaymentStatus = "none"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = "none"
	RefundRequested RefundStatus = "requested"
	RefundRefunded  RefundStatus = "refunded"
)

var (
	ErrInvalidOwner      = errors.New("owner id is required")
	ErrNoItems           = errors.New("order must contain at least one item")
	ErrInvalidProductID  = errors.New("product id must be greater than zero")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrNegativePrice     = errors.New("unit price must not be negative")
	ErrInvalidTransition = errors.New("order status transition not allowed")
	ErrUnknownItem       = errors.New("order has no item for product")
)

var transitions = map[Status][]Status{
	StatusPending:         {StatusStockReserved, StatusCancelled},
	StatusStockReserved:   {StatusPriced, StatusCancelled},
	StatusPriced:          {StatusCommitted, StatusCancelled},
	StatusCommitted:       {StatusPaid, StatusPaymentFailed, StatusCancelled},
	StatusPaymentFailed:   {StatusPaid, StatusPaymentFailed, StatusCancelled},
	StatusPaid:            {StatusFulfilled, StatusRefundRequested},
	StatusFulfilled:       {StatusRefundRequested},
	StatusRefundRequested: {StatusCancelled},
}

// LineItem is a single product line. StockDecremented and StockRestored form
// the per-item stock ledger: an item is credited back only when it was
// decremented and has not been restored yet.
type LineItem struct {
	ProductID        int64
	ProductName      string
	Quantity         int
	UnitPrice        decimal.Decimal
	Discount         decimal.Decimal
	PromotionID      int64
	StockDecremented bool
	StockRestored    bool
}

// NetUnitPrice is the unit price after discount, never below zero.
func (i LineItem) NetUnitPrice() decimal.Decimal {
	net := i.UnitPrice.Sub(i.Discount)
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}

// Subtotal returns the discounted line amount.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.NetUnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NeedsRestore reports whether the item still holds decremented stock.
func (i LineItem) NeedsRestore() bool {
	return i.StockDecremented && !i.StockRestored
}

// Order is the aggregate driven by the order saga.
type Order struct {
	ID            int64
	OwnerID       string
	Items         []LineItem
	Total         decimal.Decimal
	Status        Status
	PaymentStatus PaymentStatus
	RefundStatus  RefundStatus
	PaymentMethod string
	Reason        string
	StockSettled  bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	events []Event
}

// NewOrder builds a pending order for the owner.
func NewOrder(ownerID string, now time.Time) (*Order, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidOwner
	}
	return &Order{
		OwnerID:       ownerID,
		Status:        StatusPending,
		PaymentStatus: PaymentNone,
		RefundStatus:  RefundNone,
		Total:         decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// AddItem appends a priced line to a pending order.
func (o *Order) AddItem(item LineItem) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: items can only be added while pending", ErrInvalidTransition)
	}
	if item.ProductID <= 0 {
		return ErrInvalidProductID
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if item.UnitPrice.IsNegative() {
		return ErrNegativePrice
	}
	item.Discount = decimal.Zero
	item.PromotionID = 0
	item.StockDecremented = false
	item.StockRestored = false
	o.Items = append(o.Items, item)
	o.recalculate()
	return nil
}

// ApplyPromotion prices every line of the product with the given promotion.
func (o *Order) ApplyPromotion(productID int64, promo Promotion) error {
	found := false
	for i := range o.Items {
		if o.Items[i].ProductID != productID {
			continue
		}
		found = true
		o.Items[i].Discount = promo.DiscountFor(o.Items[i].UnitPrice)
		o.Items[i].PromotionID = promo.ID
	}
	if !found {
		return fmt.Errorf("%w %d", ErrUnknownItem, productID)
	}
	o.recalculate()
	return nil
}

// Validate enforces structural invariants on the aggregate.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.OwnerID) == "" {
		return ErrInvalidOwner
	}
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	for _, item := range o.Items {
		if item.ProductID <= 0 {
			return ErrInvalidProductID
		}
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

// CanTransition reports whether the transition table allows moving to next.
func (o *Order) CanTransition(next Status) bool {
	for _, allowed := range transitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to next when the table allows it.
func (o *Order) TransitionTo(next Status) error {
	if !o.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	if next == StatusCommitted {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	o.Status = next
	return nil
}

// MarkDecremented records that stock for item i was taken.
func (o *Order) MarkDecremented(i int) {
	o.Items[i].StockDecremented = true
}

// MarkRestored records that stock for item i was credited back.
func (o *Order) MarkRestored(i int) {
	o.Items[i].StockRestored = true
}

// Commit raises OrderCreated once every item holds its stock and marks the
// order settled. A committed order that is not settled is still being created.
func (o *Order) Commit(now time.Time) error {
	for _, item := range o.Items {
		if !item.StockDecremented {
			return fmt.Errorf("%w: product %d has no stock decrement", ErrInvalidTransition, item.ProductID)
		}
	}
	if o.Status != StatusCommitted {
		return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
	}
	if o.StockSettled {
		return fmt.Errorf("%w: order %d already settled", ErrInvalidTransition, o.ID)
	}
	o.StockSettled = true
	o.record(OrderCreated{BaseEvent: BaseEvent{Timestamp: now}, OrderID: o.ID})
	return nil
}

// Aborted reports whether creation was cancelled before the stock settled.
func (o *Order) Aborted() bool {
	return o.Status == StatusCancelled && !o.StockSettled
}

// Cancel aborts the order.
func (o *Order) Cancel(reason string, now time.Time) error {
	if err := o.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	o.Reason = reason
	o.record(OrderCancelled{BaseEvent: BaseEvent{Timestamp: now}, OrderID: o.ID, Reason: reason})
	return nil
}

// MarkPaid settles a successful charge and fulfils the order.
func (o *Order) MarkPaid(method string, now time.Time) error {
	if err := o.TransitionTo(StatusPaid); err != nil {
		return err
	}
	o.PaymentStatus = PaymentPaid
	o.PaymentMethod = method
	o.Reason = ""
	if err := o.TransitionTo(StatusFulfilled); err != nil {
		return err
	}
	o.record(OrderPaid{BaseEvent: BaseEvent{Timestamp: now}, OrderID: o.ID, Method: method})
	return nil
}

// MarkPaymentFailed records a declined charge. The order stays payable.
func (o *Order) MarkPaymentFailed(method, reason string, now time.Time) error {
	if err := o.TransitionTo(StatusPaymentFailed); err != nil {
		return err
	}
	o.PaymentStatus = PaymentFailed
	o.PaymentMethod = method
	o.Reason = reason
	o.record(OrderPaymentFailed{BaseEvent: BaseEvent{Timestamp: now}, OrderID: o.ID, Reason: reason})
	return nil
}

// RequestRefund opens a refund on a paid or fulfilled order.
func (o *Order) RequestRefund(reason string) error {
	if err := o.TransitionTo(StatusRefundRequested); err != nil {
		return err
	}
	o.RefundStatus = RefundRequested
	o.Reason = reason
	return nil
}

// CompleteRefund closes the refund once every decremented item is restored.
func (o *Order) CompleteRefund(now time.Time) error {
	for _, item := range o.Items {
		if item.NeedsRestore() {
			return fmt.Errorf("%w: product %d not restored", ErrInvalidTransition, item.ProductID)
		}
	}
	if err := o.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	o.RefundStatus = RefundRefunded
	o.record(OrderRefunded{BaseEvent: BaseEvent{Timestamp: now}, OrderID: o.ID, Reason: o.Reason})
	return nil
}

// Events returns the pending domain events.
func (o *Order) Events() []Event {
	return append([]Event(nil), o.events...)
}

// ClearEvents drops pending events after they were persisted.
func (o *Order) ClearEvents() {
	o.events = nil
}

// Clone returns a deep copy without pending events.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	copy := *o
	copy.Items = append([]LineItem(nil), o.Items...)
	copy.events = nil
	return &copy
}

func (o *Order) record(e Event) {
	o.events = append(o.events, e)
}

func (o *Order) recalculate() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	o.Total = total
}
