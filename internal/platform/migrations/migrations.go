package migrations

import (
	"gorm.io/gorm"

	auditpg "github.com/Apurer/go-commerce-saga/internal/domains/audit/adapters/persistence/postgres"
	orderpg "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/persistence/postgres"
	searchpg "github.com/Apurer/go-commerce-saga/internal/domains/search/adapters/persistence/postgres"
	outboxpg "github.com/Apurer/go-commerce-saga/internal/platform/outbox/postgres"
	projectionpg "github.com/Apurer/go-commerce-saga/internal/shared/projection/postgres"
)

// Document tables backing the JSONB projection store.
const (
	AnalyticsOrdersTable   = "analytics_orders"
	AnalyticsProductsTable = "analytics_products"
	InsightsForecastsTable = "insights_forecasts"
	InsightsPurchasesTable = "insights_purchases"
	ShipmentsTable         = "shipments"
)

// Run applies the schema for every bounded context. Safe to call on each start.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if err := db.AutoMigrate(
		&orderpg.OrderRecord{},
		&orderpg.IdempotencyRecord{},
		&orderpg.GapRecord{},
		&outboxpg.Record{},
		&auditpg.EntryRecord{},
		&searchpg.EntryRecord{},
	); err != nil {
		return err
	}
	for _, table := range []string{AnalyticsOrdersTable, AnalyticsProductsTable, InsightsForecastsTable, InsightsPurchasesTable, ShipmentsTable} {
		if err := projectionpg.Migrate(db, table); err != nil {
			return err
		}
	}
	return nil
}
