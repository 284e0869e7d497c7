// Package retry runs operations under a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy is used for synchronous calls to external capabilities.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     time.Second,
	Multiplier:      2,
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Notify observes each failed attempt before the next sleep.
type Notify func(err error, attempt int, wait time.Duration)

// Do executes op until it succeeds, returns a non-transient error, the attempts
// are exhausted, or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, policy Policy, transient Classifier, op func(ctx context.Context) error, notify ...Notify) error {
	if op == nil {
		return errors.New("retry: nil operation")
	}
	policy = policy.normalized()
	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(err)
		}
		if transient != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var onRetry backoff.Notify
	if len(notify) > 0 && notify[0] != nil {
		fn := notify[0]
		onRetry = func(err error, wait time.Duration) { fn(err, attempt, wait) }
	}
	return backoff.RetryNotify(operation, policy.backOff(ctx), onRetry)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultPolicy.Multiplier
	}
	return p
}
