package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	errFlaky = errors.New("flaky")
	errFatal = errors.New("fatal")
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), isFlaky, func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	var notified []int
	err := Do(context.Background(), fastPolicy(3), isFlaky, func(context.Context) error {
		calls++
		return errFlaky
	}, func(_ error, attempt int, _ time.Duration) {
		notified = append(notified, attempt)
	})
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, notified)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), isFlaky, func(context.Context) error {
		calls++
		return errFatal
	})
	require.ErrorIs(t, err, errFatal)
	require.Equal(t, 1, calls)
}

func TestDo_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastPolicy(5), isFlaky, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 1, calls)
}
