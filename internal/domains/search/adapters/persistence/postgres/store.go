package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/go-commerce-saga/internal/domains/search/domain"
	"github.com/Apurer/go-commerce-saga/internal/domains/search/ports"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
)

var _ ports.Store = (*Store)(nil)

// Store keeps the search index in a typed table so filters run in SQL.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EntryRecord maps the search_products table.
type EntryRecord struct {
	Key          string             `gorm:"primaryKey;column:key;size:64"`
	ProductID    int64              `gorm:"column:product_id;index"`
	Name         string             `gorm:"column:name"`
	Description  string             `gorm:"column:description"`
	Price        decimal.Decimal    `gorm:"column:price;type:numeric(14,2);index"`
	Stock        int                `gorm:"column:stock"`
	CategoryID   *int64             `gorm:"column:category_id;index"`
	CategoryName string             `gorm:"column:category_name"`
	TagIDs       pq.Int64Array      `gorm:"column:tag_ids;type:bigint[]"`
	TagNames     pq.StringArray     `gorm:"column:tag_names;type:text[]"`
	Promotions   []domain.Promotion `gorm:"column:promotions;type:jsonb;serializer:json"`
	Sequences    map[string]int64   `gorm:"column:sequences;type:jsonb;serializer:json"`
	Deleted      bool               `gorm:"column:deleted;index"`
	DeletedBy    string             `gorm:"column:deleted_by;size:128"`
	CreatedAt    time.Time          `gorm:"column:created_at"`
	UpdatedAt    time.Time          `gorm:"column:updated_at"`
}

func (EntryRecord) TableName() string { return "search_products" }

func (s *Store) Load(ctx context.Context, key string) (*projection.Projection[domain.Entry], error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	var row EntryRecord
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &projection.Projection[domain.Entry]{
		Entity: row.toDomain(),
		Metadata: projection.Metadata{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Sequences: row.Sequences,
			Deleted:   row.Deleted,
			DeletedBy: row.DeletedBy,
		},
	}, nil
}

func (s *Store) Save(ctx context.Context, key string, p *projection.Projection[domain.Entry]) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	row := toRecord(key, p)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *Store) Search(ctx context.Context, q domain.Query) ([]domain.Entry, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("deleted = ? AND name <> ''", false)
	if text := strings.TrimSpace(q.Text); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		query = query.Where("(name ILIKE ? OR description ILIKE ?)", pattern, pattern)
	}
	if q.CategoryID != 0 {
		query = query.Where("category_id = ?", q.CategoryID)
	}
	if q.TagID != 0 {
		query = query.Where("? = ANY(tag_ids)", q.TagID)
	}
	if q.MinPrice != nil {
		query = query.Where("price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		query = query.Where("price <= ?", *q.MaxPrice)
	}
	if q.InStockOnly {
		query = query.Where("stock > 0")
	}
	var rows []EntryRecord
	if err := query.Order("product_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres search store not configured")
	}
	return nil
}

func toRecord(key string, p *projection.Projection[domain.Entry]) EntryRecord {
	e := p.Entity
	row := EntryRecord{
		Key:         key,
		ProductID:   e.ID,
		Name:        e.Name,
		Description: e.Description,
		Price:       e.Price,
		Stock:       e.Stock,
		TagIDs:      make(pq.Int64Array, 0, len(e.Tags)),
		TagNames:    make(pq.StringArray, 0, len(e.Tags)),
		Promotions:  e.Promotions,
		Sequences:   p.Metadata.Sequences,
		Deleted:     p.Metadata.Deleted,
		DeletedBy:   p.Metadata.DeletedBy,
		CreatedAt:   p.Metadata.CreatedAt,
		UpdatedAt:   p.Metadata.UpdatedAt,
	}
	if e.Category != nil {
		id := e.Category.ID
		row.CategoryID = &id
		row.CategoryName = e.Category.Name
	}
	for _, tag := range e.Tags {
		row.TagIDs = append(row.TagIDs, tag.ID)
		row.TagNames = append(row.TagNames, tag.Name)
	}
	return row
}

func (r EntryRecord) toDomain() domain.Entry {
	e := domain.Entry{
		ID:          r.ProductID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Tags:        make([]domain.Tag, 0, len(r.TagIDs)),
		Promotions:  r.Promotions,
	}
	if r.CategoryID != nil {
		e.Category = &domain.Category{ID: *r.CategoryID, Name: r.CategoryName}
	}
	for i, id := range r.TagIDs {
		tag := domain.Tag{ID: id}
		if i < len(r.TagNames) {
			tag.Name = r.TagNames[i]
		}
		e.Tags = append(e.Tags, tag)
	}
	if e.Promotions == nil {
		e.Promotions = []domain.Promotion{}
	}
	return e
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
