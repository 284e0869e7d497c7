package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/Apurer/go-commerce-saga/internal/domains/search/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/search/ports"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

var _ ports.Store = (*Store)(nil)

// Store is an in-memory search index that scans every entry.
type Store struct {
	*projection.MemoryStore[domain.Entry]
}

func NewStore() *Store {
	return &Store{MemoryStore: projection.NewMemoryStore(domain.Entry.Clone)}
}

func (s *Store) Search(_ context.Context, q domain.Query) ([]domain.Entry, error) {
	out := []domain.Entry{}
	for _, rec := range s.List() {
		if rec.Entity.ID == 0 || rec.Entity.Name == "" {
			continue
		}
		if rec.Entity.Matches(q) {
			out = append(out, rec.Entity)
		}
	}
	slices.SortFunc(out, func(a, b domain.Entry) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}
