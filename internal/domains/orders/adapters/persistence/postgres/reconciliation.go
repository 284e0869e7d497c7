package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
)

var _ ports.ReconciliationSink = (*ReconciliationSink)(nil)

// ReconciliationSink stores stock gaps for operators.
type ReconciliationSink struct {
	db *gorm.DB
}

func NewReconciliationSink(db *gorm.DB) *ReconciliationSink {
	return &ReconciliationSink{db: db}
}

// GapRecord maps the stock_reconciliation_gaps table.
type GapRecord struct {
	ID         int64      `gorm:"primaryKey;autoIncrement;column:id"`
	OrderID    int64      `gorm:"column:order_id;index"`
	ProductID  int64      `gorm:"column:product_id"`
	Quantity   int        `gorm:"column:quantity"`
	Operation  string     `gorm:"column:operation;size:32"`
	Reason     string     `gorm:"column:reason"`
	DetectedAt time.Time  `gorm:"column:detected_at"`
	ResolvedAt *time.Time `gorm:"column:resolved_at;index"`
}

func (GapRecord) TableName() string { return "stock_reconciliation_gaps" }

func (s *ReconciliationSink) RecordGap(ctx context.Context, gap ports.ReconciliationGap) error {
	if s == nil || s.db == nil {
		return errors.New("postgres reconciliation sink not configured")
	}
	return s.db.WithContext(ctx).Create(&GapRecord{
		OrderID:    gap.OrderID,
		ProductID:  gap.ProductID,
		Quantity:   gap.Quantity,
		Operation:  gap.Operation,
		Reason:     gap.Reason,
		DetectedAt: gap.DetectedAt,
	}).Error
}
