package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

var _ Store = (*Log)(nil)

// Log is an in-memory outbox. Repositories call Append while holding their own
// lock so the state change and its events become visible together.
type Log struct {
	mu      sync.RWMutex
	records []Record
	next    int64
	now     func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append adds envelopes in order.
func (l *Log) Append(envs ...eventbus.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, env := range envs {
		l.next++
		l.records = append(l.records, Record{Position: l.next, Envelope: env, CreatedAt: l.now().UTC()})
	}
}

func (l *Log) FetchPending(_ context.Context, limit int) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Record{}
	for _, rec := range l.records {
		if rec.PublishedAt != nil {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *Log) MarkPublished(_ context.Context, position int64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec := l.find(position); rec != nil {
		rec.PublishedAt = &at
	}
	return nil
}

func (l *Log) MarkFailed(_ context.Context, position int64, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec := l.find(position); rec != nil {
		rec.Attempts++
		rec.LastError = reason
	}
	return nil
}

// All returns every record, published or not.
func (l *Log) All() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Record(nil), l.records...)
}

func (l *Log) find(position int64) *Record {
	for i := range l.records {
		if l.records[i].Position == position {
			return &l.records[i]
		}
	}
	return nil
}
