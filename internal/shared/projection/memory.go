package projection

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
)

// MemoryStore keeps projections in a map. Entities are copied on the way in
// and out through clone.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	records map[string]Projection[T]
	clone   func(T) T
	outbox  *outbox.Log
}

// NewMemoryStore builds a store. clone may be nil for entities without
// reference fields.
func NewMemoryStore[T any](clone func(T) T) *MemoryStore[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &MemoryStore[T]{records: map[string]Projection[T]{}, clone: clone}
}

// WithOutbox makes Save append staged events to log under the store lock.
func (s *MemoryStore[T]) WithOutbox(log *outbox.Log) *MemoryStore[T] {
	s.outbox = log
	return s
}

func (s *MemoryStore[T]) Load(_ context.Context, key string) (*Projection[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	out := s.copy(rec)
	return &out, nil
}

func (s *MemoryStore[T]) Save(_ context.Context, key string, p *Projection[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = s.copy(*p)
	if s.outbox != nil && len(p.Pending) > 0 {
		s.outbox.Append(p.Pending...)
	}
	p.Pending = nil
	return nil
}

// List returns live (non-deleted) projections sorted by key.
func (s *MemoryStore[T]) List() []Projection[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for k, rec := range s.records {
		if !rec.Metadata.Deleted {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]Projection[T], 0, len(keys))
	for _, k := range keys {
		out = append(out, s.copy(s.records[k]))
	}
	return out
}

func (s *MemoryStore[T]) ListLive(_ context.Context) ([]Projection[T], error) {
	return s.List(), nil
}

func (s *MemoryStore[T]) copy(p Projection[T]) Projection[T] {
	p.Entity = s.clone(p.Entity)
	p.Metadata.Sequences = maps.Clone(p.Metadata.Sequences)
	p.Pending = nil
	return p
}

var _ ListStore[struct{}] = (*MemoryStore[struct{}])(nil)
