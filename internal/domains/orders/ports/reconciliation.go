package ports

import (
	"context"
	"time"
)

// ReconciliationGap describes stock that could not be credited back.
type ReconciliationGap struct {
	OrderID    int64
	ProductID  int64
	Quantity   int
	Operation  string
	Reason     string
	DetectedAt time.Time
}

// ReconciliationSink receives gaps for manual follow-up.
type ReconciliationSink interface {
	RecordGap(ctx context.Context, gap ReconciliationGap) error
}
