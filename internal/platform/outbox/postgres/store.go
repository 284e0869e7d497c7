// Package postgres persists the outbox in PostgreSQL using GORM.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
)

var _ outbox.Store = (*Store)(nil)

// Record maps an outbox row. It is exported so migrations can register it.
type Record struct {
	Position       int64           `gorm:"primaryKey;autoIncrement;column:position"`
	EventID        string          `gorm:"column:event_id;size:64;uniqueIndex"`
	Topic          string          `gorm:"column:topic;size:64"`
	EventType      string          `gorm:"column:event_type;size:64"`
	OriginKey      string          `gorm:"column:origin_key;size:128;index"`
	OriginSequence int64           `gorm:"column:origin_sequence"`
	Payload        json.RawMessage `gorm:"column:payload;type:jsonb"`
	OccurredAt     time.Time       `gorm:"column:occurred_at"`
	Attempts       int             `gorm:"column:attempts"`
	LastError      string          `gorm:"column:last_error"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	PublishedAt    *time.Time      `gorm:"column:published_at;index"`
}

func (Record) TableName() string { return "outbox_events" }

// Append writes envelopes using tx, which callers pass from their own
// transaction. Re-appending an event id is ignored.
func Append(tx *gorm.DB, envs ...eventbus.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	rows := make([]Record, 0, len(envs))
	for _, env := range envs {
		rows = append(rows, Record{
			EventID:        env.ID,
			Topic:          env.Topic,
			EventType:      env.EventType,
			OriginKey:      env.OriginKey,
			OriginSequence: env.OriginSequence,
			Payload:        env.Data,
			OccurredAt:     env.OccurredAt,
		})
	}
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).Create(&rows).Error
}

// Store is the relay-facing side of the table.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var rows []Record
	q := s.db.WithContext(ctx).Where("published_at IS NULL").Order("position")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]outbox.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toOutbox())
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, position int64, at time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("position = ?", position).
		Update("published_at", at).Error
}

func (s *Store) MarkFailed(ctx context.Context, position int64, reason string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("position = ?", position).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": reason}).Error
}

func (s *Store) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres outbox store not configured")
	}
	return nil
}

func (r Record) toOutbox() outbox.Record {
	return outbox.Record{
		Position: r.Position,
		Envelope: eventbus.Envelope{
			ID:             r.EventID,
			Topic:          r.Topic,
			EventType:      r.EventType,
			OriginKey:      r.OriginKey,
			OriginSequence: r.OriginSequence,
			OccurredAt:     r.OccurredAt,
			Data:           r.Payload,
		},
		Attempts:    r.Attempts,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt,
		PublishedAt: r.PublishedAt,
	}
}
