package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const uniqueViolation = "23505"

type connectConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	pingTimeout time.Duration
	logLevel    logger.LogLevel
}

// Option tunes the connection pool opened by Connect.
type Option func(*connectConfig)

// WithPool overrides the pool limits. Non-positive values keep the defaults.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(c *connectConfig) {
		if maxOpen > 0 {
			c.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			c.maxIdle = maxIdle
		}
		if maxLifetime > 0 {
			c.maxLifetime = maxLifetime
		}
	}
}

// WithQueryLogging makes GORM log every statement. Off by default; the order
// and outbox paths are chatty.
func WithQueryLogging() Option {
	return func(c *connectConfig) { c.logLevel = logger.Info }
}

// Connect opens a GORM handle with duplicate-key translation enabled and
// pings it before returning.
func Connect(ctx context.Context, dsn string, opts ...Option) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres DSN is empty")
	}
	cfg := connectConfig{
		maxOpen:     20,
		maxIdle:     5,
		maxLifetime: 30 * time.Minute,
		pingTimeout: 5 * time.Second,
		logLevel:    logger.Warn,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(cfg.logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.maxOpen)
	sqlDB.SetMaxIdleConns(cfg.maxIdle)
	sqlDB.SetConnMaxLifetime(cfg.maxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Close releases the pool behind db. A nil db is a no-op.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsUniqueViolation reports whether err is a duplicate key error, either as
// translated by GORM or as the raw driver error.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
