package memory

import (
	"context"
	"sync"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
)

var _ ports.ReconciliationSink = (*ReconciliationLog)(nil)

// ReconciliationLog keeps gaps in memory for inspection.
type ReconciliationLog struct {
	mu   sync.Mutex
	gaps []ports.ReconciliationGap
}

func NewReconciliationLog() *ReconciliationLog {
	return &ReconciliationLog{}
}

func (l *ReconciliationLog) RecordGap(_ context.Context, gap ports.ReconciliationGap) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gaps = append(l.gaps, gap)
	return nil
}

func (l *ReconciliationLog) Gaps() []ports.ReconciliationGap {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ports.ReconciliationGap(nil), l.gaps...)
}
