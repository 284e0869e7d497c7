package orders

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/application"
)

// errorTypes names application errors so they survive Temporal
// serialization. Order matters: the first match wins.
var errorTypes = []struct {
	name      string
	err       error
	retryable bool
}{
	{"ReconciliationGap", application.ErrReconciliationGap, false},
	{"InvalidInput", application.ErrInvalidInput, false},
	{"OrderNotFound", application.ErrOrderNotFound, false},
	{"ProductNotFound", application.ErrProductNotFound, false},
	{"InsufficientStock", application.ErrInsufficientStock, false},
	{"StockRejected", application.ErrStockRejected, false},
	{"OrderAborted", application.ErrOrderAborted, false},
	{"IdempotencyConflict", application.ErrIdempotencyConflict, false},
	{"AlreadyPaid", application.ErrAlreadyPaid, false},
	{"InvalidState", application.ErrInvalidState, false},
	{"Conflict", application.ErrConflict, true},
	{"Unavailable", application.ErrUnavailable, true},
}

// NonRetryableErrorTypes lists the types the activity retry policy must not retry.
func NonRetryableErrorTypes() []string {
	out := make([]string, 0, len(errorTypes))
	for _, t := range errorTypes {
		if !t.retryable {
			out = append(out, t.name)
		}
	}
	return out
}

// EncodeError converts an application error into a typed Temporal error.
func EncodeError(err error) error {
	if err == nil {
		return nil
	}
	for _, t := range errorTypes {
		if !errors.Is(err, t.err) {
			continue
		}
		if t.retryable {
			return temporal.NewApplicationErrorWithCause(err.Error(), t.name, err)
		}
		return temporal.NewNonRetryableApplicationError(err.Error(), t.name, err)
	}
	return err
}

// DecodeError restores the application sentinel from a workflow or
// activity failure so callers can keep using errors.Is.
func DecodeError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return err
	}
	for _, t := range errorTypes {
		if appErr.Type() == t.name {
			return fmt.Errorf("%w: %s", t.err, appErr.Error())
		}
	}
	return err
}
