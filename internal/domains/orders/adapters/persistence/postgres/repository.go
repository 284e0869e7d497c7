package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	outboxpg "github.com/Apurer/go-commerce-saga/internal/platform/outbox/postgres"
)

var _ ports.Repository = (*Repository)(nil)

// Repository persists orders in PostgreSQL using GORM. Updates and their
// outbox rows share one transaction.
type Repository struct {
	db *gorm.DB
}

// NewRepository wires a PostgreSQL-backed repository. Caller manages DB lifecycle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// OrderRecord maps the order aggregate to the orders table.
type OrderRecord struct {
	ID            int64           `gorm:"primaryKey;autoIncrement;column:id"`
	OwnerID       string          `gorm:"column:owner_id;size:128;index"`
	Total         decimal.Decimal `gorm:"column:total;type:numeric(14,2)"`
	Status        string          `gorm:"column:status;type:varchar(32);index"`
	PaymentStatus string          `gorm:"column:payment_status;type:varchar(16)"`
	RefundStatus  string          `gorm:"column:refund_status;type:varchar(16)"`
	PaymentMethod string          `gorm:"column:payment_method;size:64"`
	Reason        string          `gorm:"column:reason"`
	StockSettled  bool            `gorm:"column:stock_settled;not null;default:false"`
	Items         []ItemRecord    `gorm:"column:items;type:jsonb;serializer:json"`
	Version       int64           `gorm:"column:version;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;index"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

func (OrderRecord) TableName() string { return "orders" }

// ItemRecord is one line item including its stock ledger flags.
type ItemRecord struct {
	ProductID        int64           `json:"product_id"`
	ProductName      string          `json:"product_name"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Discount         decimal.Decimal `json:"discount"`
	PromotionID      int64           `json:"promotion_id,omitempty"`
	StockDecremented bool            `json:"stock_decremented"`
	StockRestored    bool            `json:"stock_restored"`
}

var updateColumns = []string{
	"owner_id", "total", "status", "payment_status", "refund_status",
	"payment_method", "reason", "stock_settled", "items", "version", "updated_at",
}

// Create inserts the order at version 1.
func (r *Repository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.New("order is nil")
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	record := toRecord(order)
	record.ID = 0
	record.Version = 1
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return record.toDomain(), nil
}

// Update writes the order when the stored version matches expectedVersion
// and appends events to the outbox in the same transaction.
func (r *Repository) Update(ctx context.Context, order *domain.Order, expectedVersion int64, events ...eventbus.Envelope) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.New("order is nil")
	}
	record := toRecord(order)
	record.Version = expectedVersion + 1
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&OrderRecord{ID: record.ID}).
			Where("version = ?", expectedVersion).
			Select(updateColumns).
			Updates(&record)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&OrderRecord{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ports.ErrNotFound
			}
			return ports.ErrVersionConflict
		}
		return outboxpg.Append(tx, events...)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, record.ID)
}

// GetByID fetches an order by identifier.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	var record OrderRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

// List returns orders by id, optionally filtered by owner.
func (r *Repository) List(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Order("id")
	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}
	var records []OrderRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(records))
	for i := range records {
		orders = append(orders, records[i].toDomain())
	}
	return orders, nil
}

func (r *Repository) ensureDB() error {
	if r == nil || r.db == nil {
		return errors.New("postgres order repository not configured")
	}
	return nil
}

func toRecord(order *domain.Order) OrderRecord {
	items := make([]ItemRecord, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemRecord{
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			Discount:         item.Discount,
			PromotionID:      item.PromotionID,
			StockDecremented: item.StockDecremented,
			StockRestored:    item.StockRestored,
		})
	}
	return OrderRecord{
		ID:            order.ID,
		OwnerID:       order.OwnerID,
		Total:         order.Total,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		RefundStatus:  string(order.RefundStatus),
		PaymentMethod: order.PaymentMethod,
		Reason:        order.Reason,
		StockSettled:  order.StockSettled,
		Items:         items,
		Version:       order.Version,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func (r OrderRecord) toDomain() *domain.Order {
	items := make([]domain.LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, domain.LineItem{
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			Discount:         item.Discount,
			PromotionID:      item.PromotionID,
			StockDecremented: item.StockDecremented,
			StockRestored:    item.StockRestored,
		})
	}
	return &domain.Order{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Items:         items,
		Total:         r.Total,
		Status:        domain.Status(r.Status),
		PaymentStatus: domain.PaymentStatus(r.PaymentStatus),
		RefundStatus:  domain.RefundStatus(r.RefundStatus),
		PaymentMethod: r.PaymentMethod,
		Reason:        r.Reason,
		StockSettled:  r.StockSettled,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
