package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
)

var _ ports.Repository = (*Repository)(nil)

// Repository is an in-memory order persistence adapter. Events are appended
// to the outbox log while the repository lock is held.
type Repository struct {
	mu     sync.RWMutex
	orders map[int64]*domain.Order
	nextID int64
	outbox *outbox.Log
}

func NewRepository(log *outbox.Log) *Repository {
	if log == nil {
		log = outbox.NewLog()
	}
	return &Repository{orders: map[int64]*domain.Order{}, outbox: log}
}

// Outbox exposes the log the relay drains.
func (r *Repository) Outbox() *outbox.Log {
	return r.outbox
}

func (r *Repository) Create(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil {
		return nil, errors.New("order is nil")
	}
	clone := order.Clone()
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	clone.ID = r.nextID
	clone.Version = 1
	r.orders[clone.ID] = clone
	return clone.Clone(), nil
}

func (r *Repository) Update(_ context.Context, order *domain.Order, expectedVersion int64, events ...eventbus.Envelope) (*domain.Order, error) {
	if order == nil {
		return nil, errors.New("order is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, ports.ErrVersionConflict
	}
	clone := order.Clone()
	clone.Version = expectedVersion + 1
	clone.CreatedAt = current.CreatedAt
	r.orders[clone.ID] = clone
	r.outbox.Append(events...)
	return clone.Clone(), nil
}

func (r *Repository) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *Repository) List(_ context.Context, ownerID string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if ownerID != "" && order.OwnerID != ownerID {
			continue
		}
		list = append(list, order.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}
