package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
)

var _ ports.PaymentGateway = (*Simulator)(nil)

// DeclinePrefix marks tokens the simulator refuses.
const DeclinePrefix = "Fail"

// Simulator approves every charge except tokens starting with DeclinePrefix.
type Simulator struct{}

func NewSimulator() *Simulator {
	return &Simulator{}
}

func (s *Simulator) Charge(ctx context.Context, req ports.PaymentRequest) (ports.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.PaymentResult{}, err
	}
	if strings.HasPrefix(req.Token, DeclinePrefix) {
		return ports.PaymentResult{Approved: false, Reason: "payment declined"}, nil
	}
	return ports.PaymentResult{Approved: true, Reference: "pay_" + uuid.NewString()}, nil
}
