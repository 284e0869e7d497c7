package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/go-commerce-saga/internal/domains/audit/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/audit/ports"
)

var _ ports.Store = (*Store)(nil)

// Store persists the audit log in PostgreSQL.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EntryRecord maps the audit_log table. EntryID carries the unique identity.
type EntryRecord struct {
	Position       int64           `gorm:"primaryKey;autoIncrement;column:position"`
	EntryID        string          `gorm:"column:entry_id;size:255;uniqueIndex"`
	Topic          string          `gorm:"column:topic;size:64;index"`
	EventType      string          `gorm:"column:event_type;size:64"`
	OriginKey      string          `gorm:"column:origin_key;size:128"`
	OriginSequence int64           `gorm:"column:origin_sequence"`
	EventID        string          `gorm:"column:event_id;size:64"`
	Payload        json.RawMessage `gorm:"column:payload;type:jsonb"`
	RecordedAt     time.Time       `gorm:"column:recorded_at"`
}

func (EntryRecord) TableName() string { return "audit_log" }

func (s *Store) Append(ctx context.Context, entry domain.Entry) (bool, error) {
	if err := s.ensureDB(); err != nil {
		return false, err
	}
	row := EntryRecord{
		EntryID:        entry.ID,
		Topic:          entry.Topic,
		EventType:      entry.EventType,
		OriginKey:      entry.OriginKey,
		OriginSequence: entry.OriginSequence,
		EventID:        entry.EventID,
		Payload:        entry.Payload,
		RecordedAt:     entry.RecordedAt,
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "entry_id"}}, DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]domain.Entry, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("position DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []EntryRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func (s *Store) ListByTopic(ctx context.Context, topic string) ([]domain.Entry, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var rows []EntryRecord
	if err := s.db.WithContext(ctx).Where("topic = ?", topic).Order("position").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func (s *Store) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres audit store not configured")
	}
	return nil
}

func toEntries(rows []EntryRecord) []domain.Entry {
	out := make([]domain.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Entry{
			ID:             r.EntryID,
			Topic:          r.Topic,
			EventType:      r.EventType,
			OriginKey:      r.OriginKey,
			OriginSequence: r.OriginSequence,
			EventID:        r.EventID,
			Payload:        r.Payload,
			RecordedAt:     r.RecordedAt,
		})
	}
	return out
}
