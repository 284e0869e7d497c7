package commerceserver

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	insightsports "github.com/Apurer/go-commerce-saga/internal/domains/insights/ports"
	orderapp "github.com/Apurer/go-commerce-saga/internal/domains/orders/application"
	shippingdomain "github.com/Apurer/go-commerce-saga/internal/domains/shipping/domain"
	shippingports "github.com/Apurer/go-commerce-saga/internal/domains/shipping/ports"
	apierrors "github.com/Apurer/go-commerce-saga/internal/shared/errors"
)

var responder = apierrors.NewChainedResponder("", orderProblem, shippingProblem, insightsProblem)

// SetErrorLogger routes 5xx responses to logger. Call it before serving.
func SetErrorLogger(logger *slog.Logger) {
	responder.WithLogger(logger)
}

// respondServiceError maps application errors to RFC 7807 responses.
func respondServiceError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	responder.RespondError(c, err)
}

func respondBadRequest(c *gin.Context, err error) {
	responder.BadRequest(c, err.Error())
}

func orderProblem(err error) (apierrors.ProblemDetail, bool) {
	detail := err.Error()
	switch {
	case errors.Is(err, orderapp.ErrReconciliationGap):
		return apierrors.ErrReconciliation.WithDetail(detail), true
	case errors.Is(err, orderapp.ErrInvalidInput):
		return apierrors.ErrValidation.WithDetail(detail), true
	case errors.Is(err, orderapp.ErrOrderNotFound), errors.Is(err, orderapp.ErrProductNotFound):
		return apierrors.ErrNotFound.WithDetail(detail), true
	case errors.Is(err, orderapp.ErrInsufficientStock):
		return apierrors.ErrInsufficientStock.WithDetail(detail), true
	case errors.Is(err, orderapp.ErrAlreadyPaid),
		errors.Is(err, orderapp.ErrInvalidState),
		errors.Is(err, orderapp.ErrConflict),
		errors.Is(err, orderapp.ErrStockRejected),
		errors.Is(err, orderapp.ErrOrderAborted),
		errors.Is(err, orderapp.ErrIdempotencyConflict):
		return apierrors.ErrConflict.WithDetail(detail), true
	case errors.Is(err, orderapp.ErrUnavailable):
		return apierrors.ErrUnavailable.WithDetail(detail), true
	}
	return apierrors.ProblemDetail{}, false
}

func shippingProblem(err error) (apierrors.ProblemDetail, bool) {
	switch {
	case errors.Is(err, shippingports.ErrNotFound):
		return apierrors.ErrNotFound.WithDetail(err.Error()), true
	case errors.Is(err, shippingdomain.ErrInvalidTransition):
		return apierrors.ErrConflict.WithDetail(err.Error()), true
	}
	return apierrors.ProblemDetail{}, false
}

func insightsProblem(err error) (apierrors.ProblemDetail, bool) {
	if errors.Is(err, insightsports.ErrNotFound) {
		return apierrors.ErrNotFound.WithDetail(err.Error()), true
	}
	return apierrors.ProblemDetail{}, false
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		responder.BadRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// parseLimit reads the optional limit query parameter; zero means unset.
func parseLimit(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		responder.BadRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
