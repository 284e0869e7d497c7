// Package redis implements keyedlock.Locker on top of Redis so that replicas
// of the orders API serialise work on the same order.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
)

var _ keyedlock.Locker = (*Locker)(nil)

// ErrLockLost is reported by unlock callers through the logger hook when the
// lease expired before release.
var ErrLockLost = errors.New("redis lock lease expired before release")

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires leases with SET NX PX and releases them with a token check.
type Locker struct {
	client       goredis.UniversalClient
	prefix       string
	ttl          time.Duration
	pollInterval time.Duration
	onReleaseErr func(key string, err error)
}

type Option func(*Locker)

// WithTTL sets the lease duration. It must exceed the longest critical section.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPollInterval sets how often a waiter retries the acquisition.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithPrefix namespaces lock keys.
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// WithReleaseErrorHandler observes failed or late releases.
func WithReleaseErrorHandler(fn func(key string, err error)) Option {
	return func(l *Locker) { l.onReleaseErr = fn }
}

// NewLocker wires a redis client into a keyed locker.
func NewLocker(client goredis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:       client,
		prefix:       "lock:",
		ttl:          30 * time.Second,
		pollInterval: 25 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Lock polls until the lease is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, keyedlock.ErrEmptyKey
	}
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker not configured")
	}
	redisKey := l.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return l.unlockFunc(redisKey, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlockFunc(redisKey, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err == nil && n == 0 {
			err = ErrLockLost
		}
		if err != nil && l.onReleaseErr != nil {
			l.onReleaseErr(redisKey, err)
		}
	}
}
