package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Apurer/go-commerce-saga/internal/domains/audit/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/audit/ports"
)

var _ ports.Store = (*Store)(nil)

// Store keeps the audit log in insertion order.
type Store struct {
	mu      sync.RWMutex
	entries []domain.Entry
	seen    map[string]struct{}
}

func NewStore() *Store {
	return &Store{seen: map[string]struct{}{}}
}

func (s *Store) Append(_ context.Context, entry domain.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[entry.ID]; ok {
		return false, nil
	}
	s.seen[entry.ID] = struct{}{}
	s.entries = append(s.entries, entry)
	return true, nil
}

func (s *Store) List(_ context.Context, limit int) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.entries)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListByTopic(_ context.Context, topic string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Entry{}
	for _, e := range s.entries {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out, nil
}
