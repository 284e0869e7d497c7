// Package keyedlock provides exclusive locks scoped to a business key.
package keyedlock

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

// ErrEmptyKey is returned when a caller tries to lock without a key.
var ErrEmptyKey = errors.New("lock key is required")

// Locker serialises work on a single key. Unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const defaultShards = 32

// Sharded is an in-process Locker. Each key owns a single-slot channel; the
// shard mutex only guards the entry map.
type Sharded struct {
	shards []*shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	slot chan struct{}
	refs int
}

// NewSharded builds an in-memory locker with the given shard count (32 when <= 0).
func NewSharded(shards int) *Sharded {
	if shards <= 0 {
		shards = defaultShards
	}
	s := &Sharded{shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{entries: map[string]*entry{}}
	}
	return s
}

// Lock blocks until the key is free or ctx is done.
func (s *Sharded) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	sh := s.shardFor(key)
	e := sh.acquire(key)
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		sh.release(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			sh.release(key, e)
		})
	}, nil
}

func (s *Sharded) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (sh *shard) acquire(key string) *entry {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok {
		e = &entry{slot: make(chan struct{}, 1)}
		sh.entries[key] = e
	}
	e.refs++
	return e
}

func (sh *shard) release(key string, e *entry) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(sh.entries, key)
	}
}

// size reports the number of live entries; used by tests to check cleanup.
func (s *Sharded) size() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}

var _ Locker = (*Sharded)(nil)
