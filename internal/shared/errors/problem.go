// Package errors renders order and read-model failures as RFC 7807
// application/problem+json bodies.
package errors

import (
	"net/http"
)

// ProblemDetail is an RFC 7807 body. It doubles as an error so adapters can
// return one and have it written unchanged.
type ProblemDetail struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail,omitempty"`
	Instance   string         `json:"instance,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (p ProblemDetail) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

// Is matches on problem type, so errors.Is(err, ErrConflict) holds for any
// conflict regardless of detail.
func (p ProblemDetail) Is(target error) bool {
	other, ok := target.(ProblemDetail)
	return ok && other.Type == p.Type
}

func (p ProblemDetail) WithDetail(detail string) ProblemDetail {
	p.Detail = detail
	return p
}

func (p ProblemDetail) WithInstance(instance string) ProblemDetail {
	p.Instance = instance
	return p
}

// WithExtension copies the extension map before adding to it; templates are
// shared package values.
func (p ProblemDetail) WithExtension(key string, value any) ProblemDetail {
	ext := make(map[string]any, len(p.Extensions)+1)
	for k, v := range p.Extensions {
		ext[k] = v
	}
	ext[key] = value
	p.Extensions = ext
	return p
}

const (
	TypeValidation        = "/problems/validation-error"
	TypeNotFound          = "/problems/not-found"
	TypeConflict          = "/problems/conflict"
	TypeInsufficientStock = "/problems/insufficient-stock"
	TypeInternal          = "/problems/internal-error"
	TypeBadRequest        = "/problems/bad-request"
	TypeUnavailable       = "/problems/service-unavailable"
	TypeReconciliation    = "/problems/reconciliation-required"
)

func newProblem(typ, title string, status int) ProblemDetail {
	return ProblemDetail{Type: typ, Title: title, Status: status}
}

var (
	ErrNotFound          = newProblem(TypeNotFound, "Resource Not Found", http.StatusNotFound)
	ErrValidation        = newProblem(TypeValidation, "Validation Error", http.StatusBadRequest)
	ErrBadRequest        = newProblem(TypeBadRequest, "Bad Request", http.StatusBadRequest)
	ErrConflict          = newProblem(TypeConflict, "Conflict", http.StatusConflict)
	ErrInsufficientStock = newProblem(TypeInsufficientStock, "Insufficient Stock", http.StatusConflict)
	ErrInternal          = newProblem(TypeInternal, "Internal Server Error", http.StatusInternalServerError)
	// ErrUnavailable is returned once retries against a dependency are spent.
	ErrUnavailable = newProblem(TypeUnavailable, "Service Unavailable", http.StatusServiceUnavailable)
	// ErrReconciliation means compensation did not finish and the order's
	// stock needs manual follow-up.
	ErrReconciliation = newProblem(TypeReconciliation, "Order Needs Reconciliation", http.StatusInternalServerError)
)
