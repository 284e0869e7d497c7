package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
)

var (
	// ErrInvalidInput signals the request violated a domain invariant.
	ErrInvalidInput      = errors.New("invalid order input")
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrInvalidState      = errors.New("order state does not allow this operation")
	ErrConflict          = errors.New("order was modified concurrently")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockRejected means inventory refused a decrement after validation passed.
	ErrStockRejected = errors.New("stock adjustment rejected")
	// ErrOrderAborted means creation was cancelled and its stock credited back.
	ErrOrderAborted        = errors.New("order creation aborted")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
	ErrUnavailable         = errors.New("dependency unavailable")
	// ErrReconciliationGap means stock could not be credited back and needs manual repair.
	ErrReconciliationGap = errors.New("reconciliation gap")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrAlreadyPaid),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrStockRejected),
		errors.Is(err, ErrOrderAborted),
		errors.Is(err, ErrIdempotencyConflict),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrReconciliationGap):
		return err
	case errors.Is(err, domain.ErrInvalidOwner),
		errors.Is(err, domain.ErrNoItems),
		errors.Is(err, domain.ErrInvalidProductID),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrNegativePrice):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case errors.Is(err, domain.ErrInvalidTransition):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	case errors.Is(err, ports.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
	case errors.Is(err, ports.ErrProductNotFound):
		return fmt.Errorf("%w: %w", ErrProductNotFound, err)
	case errors.Is(err, ports.ErrVersionConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, ports.ErrIdempotencyConflict):
		return fmt.Errorf("%w: %w", ErrIdempotencyConflict, err)
	case errors.Is(err, ports.ErrStockConflict):
		return fmt.Errorf("%w: %w", ErrStockRejected, err)
	case errors.Is(err, ports.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func transient(err error) bool {
	return errors.Is(err, ports.ErrUnavailable)
}
