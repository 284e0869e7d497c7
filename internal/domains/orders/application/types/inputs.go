package types

// ItemInput is one requested line.
type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CreateOrderInput is the request of the order creation saga. IdempotencyKey
// is optional.
type CreateOrderInput struct {
	OwnerID        string      `json:"owner_id"`
	Items          []ItemInput `json:"items"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

type CheckoutInput struct {
	OrderID       int64  `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
	Token         string `json:"token"`
}

type RefundInput struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// ListOrdersInput filters listings; an empty OwnerID lists every order.
type ListOrdersInput struct {
	OwnerID string `json:"owner_id,omitempty"`
}
