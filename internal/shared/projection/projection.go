// Package projection holds the idempotent merge discipline shared by every
// read-model consumer.
package projection

import (
	"context"
	"errors"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
)

// Metadata captures persistence timestamps plus the highest origin sequence
// applied per origin key. DeletedBy names the origin key that tombstoned the
// record; only that origin may bring it back.
type Metadata struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Sequences map[string]int64
	Deleted   bool
	DeletedBy string
}

// Projection represents a derived view plus persistence metadata. Pending
// holds events a mutation staged; stores that own an outbox write them in the
// same transaction as the record, others ignore them.
type Projection[T any] struct {
	Entity   T
	Metadata Metadata
	Pending  []eventbus.Envelope
}

// Stage queues env for the store's outbox.
func (p *Projection[T]) Stage(env eventbus.Envelope) {
	p.Pending = append(p.Pending, env)
}

// Applied reports whether an event from originKey with seq was already merged.
func (p *Projection[T]) Applied(originKey string, seq int64) bool {
	if p == nil || p.Metadata.Sequences == nil {
		return false
	}
	last, ok := p.Metadata.Sequences[originKey]
	return ok && seq <= last
}

// Advance records seq as applied for originKey.
func (p *Projection[T]) Advance(originKey string, seq int64, now time.Time) {
	if p.Metadata.Sequences == nil {
		p.Metadata.Sequences = map[string]int64{}
	}
	if seq > p.Metadata.Sequences[originKey] {
		p.Metadata.Sequences[originKey] = seq
	}
	if p.Metadata.CreatedAt.IsZero() {
		p.Metadata.CreatedAt = now
	}
	p.Metadata.UpdatedAt = now
}

// Revivable reports whether an event from originKey may rebuild a tombstoned
// record. Tombstones written without an origin accept any key.
func (p *Projection[T]) Revivable(originKey string) bool {
	return p.Metadata.DeletedBy == "" || p.Metadata.DeletedBy == originKey
}

// Store loads and saves projections by business key. Load returns nil, nil
// when no record exists.
type Store[T any] interface {
	Load(ctx context.Context, key string) (*Projection[T], error)
	Save(ctx context.Context, key string, p *Projection[T]) error
}

// ListStore is a Store that can enumerate live records for queries.
type ListStore[T any] interface {
	Store[T]
	// ListLive returns non-deleted records ordered by key.
	ListLive(ctx context.Context) ([]Projection[T], error)
}

// Mutation merges an event into the current record. exists is false when the
// record is new or was tombstoned; the mutation then builds it from the
// payload. Setting Metadata.Deleted tombstones the record. Events from other
// origins than the one that tombstoned a record never reach the mutation.
type Mutation[T any] func(p *Projection[T], exists bool) error

// ErrSkip lets a mutation decline an event without failing it. The sequence
// still advances.
var ErrSkip = errors.New("projection: event not applicable")

// Upsert applies mutate to the record keyed by key unless env was already
// applied. It returns whether the record changed.
func Upsert[T any](ctx context.Context, store Store[T], locks keyedlock.Locker, key string, env eventbus.Envelope, now time.Time, mutate Mutation[T]) (bool, error) {
	if key == "" {
		return false, errors.New("projection key is required")
	}
	unlock, err := locks.Lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, err := store.Load(ctx, key)
	if err != nil {
		return false, err
	}
	exists := current != nil
	if !exists {
		current = &Projection[T]{}
	}
	if current.Applied(env.OriginKey, env.OriginSequence) {
		return false, nil
	}
	wasDeleted := current.Metadata.Deleted
	if wasDeleted && !current.Revivable(env.OriginKey) {
		current.Advance(env.OriginKey, env.OriginSequence, now.UTC())
		return false, store.Save(ctx, key, current)
	}
	if wasDeleted {
		var zero T
		current.Entity = zero
		current.Metadata.Deleted = false
		exists = false
	}
	changed := true
	if err := mutate(current, exists); err != nil {
		if !errors.Is(err, ErrSkip) {
			return false, err
		}
		changed = false
		current.Metadata.Deleted = wasDeleted
		current.Pending = nil
	}
	switch {
	case !current.Metadata.Deleted:
		current.Metadata.DeletedBy = ""
	case !wasDeleted:
		current.Metadata.DeletedBy = env.OriginKey
	}
	current.Advance(env.OriginKey, env.OriginSequence, now.UTC())
	if err := store.Save(ctx, key, current); err != nil {
		return false, err
	}
	return changed, nil
}
