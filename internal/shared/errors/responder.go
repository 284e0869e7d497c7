package errors

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// ContentTypeProblemJSON is the media type for Problem Details responses.
const ContentTypeProblemJSON = "application/problem+json"

const unexpectedDetail = "an unexpected error occurred"

// ErrorMapper maps an application error to a problem. The bool is false when
// the mapper does not recognise err.
type ErrorMapper func(err error) (ProblemDetail, bool)

// ChainedResponder writes problem responses. Errors are offered to each mapper
// in order; unmapped errors become a 500 whose detail is not exposed.
type ChainedResponder struct {
	baseURI string
	mappers []ErrorMapper
	logger  *slog.Logger
}

// NewChainedResponder creates a responder. baseURI is prefixed to relative
// problem types.
func NewChainedResponder(baseURI string, mappers ...ErrorMapper) *ChainedResponder {
	return &ChainedResponder{
		baseURI: baseURI,
		mappers: mappers,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger sets the logger used for server-side failures.
func (r *ChainedResponder) WithLogger(logger *slog.Logger) *ChainedResponder {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Respond writes problem. Instance defaults to the request path and the
// active trace id, if any, is attached as the traceId extension.
func (r *ChainedResponder) Respond(c *gin.Context, problem ProblemDetail) {
	if r.baseURI != "" && len(problem.Type) > 0 && problem.Type[0] == '/' {
		problem.Type = r.baseURI + problem.Type
	}
	if problem.Instance == "" {
		problem.Instance = c.Request.URL.Path
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		problem = problem.WithExtension("traceId", sc.TraceID().String())
	}
	c.Header("Content-Type", ContentTypeProblemJSON)
	c.JSON(problem.Status, problem)
}

// RespondError maps err and writes the result. A ProblemDetail anywhere in
// the chain is written as is.
func (r *ChainedResponder) RespondError(c *gin.Context, err error) {
	problem, mapped := r.resolve(err)
	if problem.Status >= http.StatusInternalServerError {
		r.logger.LogAttrs(c.Request.Context(), slog.LevelError, "request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", problem.Status),
			slog.Bool("mapped", mapped),
			slog.String("error", err.Error()),
		)
	}
	r.Respond(c, problem)
}

// BadRequest writes a 400 with detail.
func (r *ChainedResponder) BadRequest(c *gin.Context, detail string) {
	r.Respond(c, ErrBadRequest.WithDetail(detail))
}

func (r *ChainedResponder) resolve(err error) (ProblemDetail, bool) {
	for _, mapper := range r.mappers {
		if problem, ok := mapper(err); ok {
			return problem, true
		}
	}
	var problem ProblemDetail
	if errors.As(err, &problem) {
		return problem, true
	}
	return ErrInternal.WithDetail(unexpectedDetail), false
}
