package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

type PaymentRequest struct {
	OrderID int64
	Amount  decimal.Decimal
	Method  string
	Token   string
}

// PaymentResult is the opaque outcome of a charge.
type PaymentResult struct {
	Approved  bool
	Reference string
	Reason    string
}

// PaymentGateway charges an order. An error means the gateway could not be
// reached; a decline is a result with Approved=false.
type PaymentGateway interface {
	Charge(ctx context.Context, req PaymentRequest) (PaymentResult, error)
}
