// Package postgres stores projections as JSONB documents, one table per
// read model.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	outboxpg "github.com/Apurer/go-commerce-saga/internal/platform/outbox/postgres"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

// Record is the row shape shared by every document table.
type Record struct {
	Key       string           `gorm:"primaryKey;column:key;size:128"`
	Document  json.RawMessage  `gorm:"column:document;type:jsonb"`
	Sequences map[string]int64 `gorm:"column:sequences;type:jsonb;serializer:json"`
	Deleted   bool             `gorm:"column:deleted;index"`
	DeletedBy string           `gorm:"column:deleted_by;size:128"`
	CreatedAt time.Time        `gorm:"column:created_at"`
	UpdatedAt time.Time        `gorm:"column:updated_at"`
}

// Migrate creates or updates the document table.
func Migrate(db *gorm.DB, table string) error {
	return db.Table(table).AutoMigrate(&Record{})
}

// Store persists Projection[T] in table. Staged events go to the outbox in
// the same transaction.
type Store[T any] struct {
	db    *gorm.DB
	table string
}

func NewStore[T any](db *gorm.DB, table string) *Store[T] {
	return &Store[T]{db: db, table: table}
}

func (s *Store[T]) Load(ctx context.Context, key string) (*projection.Projection[T], error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var row Record
	err := s.db.WithContext(ctx).Table(s.table).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decode(row)
}

func (s *Store[T]) Save(ctx context.Context, key string, p *projection.Projection[T]) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	doc, err := json.Marshal(p.Entity)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", s.table, err)
	}
	row := Record{
		Key:       key,
		Document:  doc,
		Sequences: p.Metadata.Sequences,
		Deleted:   p.Metadata.Deleted,
		DeletedBy: p.Metadata.DeletedBy,
		CreatedAt: p.Metadata.CreatedAt,
		UpdatedAt: p.Metadata.UpdatedAt,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(s.table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "sequences", "deleted", "deleted_by", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
		return outboxpg.Append(tx, p.Pending...)
	})
	if err != nil {
		return err
	}
	p.Pending = nil
	return nil
}

func (s *Store[T]) ListLive(ctx context.Context) ([]projection.Projection[T], error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var rows []Record
	if err := s.db.WithContext(ctx).Table(s.table).Where("deleted = ?", false).Order("key").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]projection.Projection[T], 0, len(rows))
	for _, row := range rows {
		p, err := s.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store[T]) decode(row Record) (*projection.Projection[T], error) {
	p := &projection.Projection[T]{
		Metadata: projection.Metadata{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Sequences: row.Sequences,
			Deleted:   row.Deleted,
			DeletedBy: row.DeletedBy,
		},
	}
	if len(row.Document) > 0 {
		if err := json.Unmarshal(row.Document, &p.Entity); err != nil {
			return nil, fmt.Errorf("decode %s document %s: %w", s.table, row.Key, err)
		}
	}
	return p, nil
}

func (s *Store[T]) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres projection store not configured")
	}
	return nil
}

var _ projection.ListStore[struct{}] = (*Store[struct{}])(nil)
