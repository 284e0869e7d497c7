package consumers

import (
	"log/slog"

	"gorm.io/gorm"

	commerceserver "github.com/Apurer/go-commerce-saga/go"
	analyticsapp "github.com/Apurer/go-commerce-saga/internal/domains/analytics/application"
	analyticsdomain "github.com/Apurer/go-commerce-saga/internal/domains/analytics/domain"
	analyticsports "github.com/Apurer/go-commerce-saga/internal/domains/analytics/ports"
	auditmemory "github.com/Apurer/go-commerce-saga/internal/domains/audit/adapters/memory"
	auditpostgres "github.com/Apurer/go-commerce-saga/internal/domains/audit/adapters/persistence/postgres"
	auditapp "github.com/Apurer/go-commerce-saga/internal/domains/audit/application"
	auditports "github.com/Apurer/go-commerce-saga/internal/domains/audit/ports"
	insightsapp "github.com/Apurer/go-commerce-saga/internal/domains/insights/application"
	insightsdomain "github.com/Apurer/go-commerce-saga/internal/domains/insights/domain"
	insightsports "github.com/Apurer/go-commerce-saga/internal/domains/insights/ports"
	searchmemory "github.com/Apurer/go-commerce-saga/internal/domains/search/adapters/memory"
	searchpostgres "github.com/Apurer/go-commerce-saga/internal/domains/search/adapters/persistence/postgres"
	searchapp "github.com/Apurer/go-commerce-saga/internal/domains/search/application"
	searchports "github.com/Apurer/go-commerce-saga/internal/domains/search/ports"
	shippingapp "github.com/Apurer/go-commerce-saga/internal/domains/shipping/application"
	shippingdomain "github.com/Apurer/go-commerce-saga/internal/domains/shipping/domain"
	shippingports "github.com/Apurer/go-commerce-saga/internal/domains/shipping/ports"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
	"github.com/Apurer/go-commerce-saga/internal/platform/keyedlock"
	"github.com/Apurer/go-commerce-saga/internal/platform/migrations"
	"github.com/Apurer/go-commerce-saga/internal/platform/outbox"
	outboxpostgres "github.com/Apurer/go-commerce-saga/internal/platform/outbox/postgres"
	"github.com/Apurer/go-commerce-saga/internal/shared/projection"
	projectionpostgres "github.com/Apurer/go-commerce-saga/internal/shared/projection/postgres"
)

// Subscription binds one projection handler to its queue.
type Subscription struct {
	Queue   string
	Topics  []string
	Handler eventbus.HandlerFunc
}

// ReadModels bundles the projections and the queries they serve.
type ReadModels struct {
	analytics        *analyticsapp.Projector
	analyticsQueries *analyticsapp.QueryService
	insights         *insightsapp.Projector
	insightsQueries  *insightsapp.QueryService
	audit            *auditapp.Service
	search           *searchapp.Service
	shipping         *shippingapp.Service
	// ShipmentOutbox holds shipment events until a relay publishes them.
	ShipmentOutbox outbox.Store
}

// BuildReadModels wires the projections on postgres when db is set and on
// memory stores otherwise. Shipment events go to the outbox table with db,
// or to events without it.
func BuildReadModels(db *gorm.DB, events *outbox.Log, locks keyedlock.Locker, logger *slog.Logger) *ReadModels {
	var (
		orderSummaries   analyticsports.OrderStore
		productSummaries analyticsports.ProductStore
		forecasts        insightsports.ForecastStore
		histories        insightsports.HistoryStore
		auditStore       auditports.Store
		searchStore      searchports.Store
		shipmentStore    shippingports.Store
		shipmentOutbox   outbox.Store
	)
	if db != nil {
		orderSummaries = projectionpostgres.NewStore[analyticsdomain.OrderSummary](db, migrations.AnalyticsOrdersTable)
		productSummaries = projectionpostgres.NewStore[analyticsdomain.ProductSummary](db, migrations.AnalyticsProductsTable)
		forecasts = projectionpostgres.NewStore[insightsdomain.Forecast](db, migrations.InsightsForecastsTable)
		histories = projectionpostgres.NewStore[insightsdomain.PurchaseHistory](db, migrations.InsightsPurchasesTable)
		auditStore = auditpostgres.NewStore(db)
		searchStore = searchpostgres.NewStore(db)
		shipmentStore = projectionpostgres.NewStore[shippingdomain.Shipment](db, migrations.ShipmentsTable)
		shipmentOutbox = outboxpostgres.NewStore(db)
	} else {
		orderSummaries = projection.NewMemoryStore[analyticsdomain.OrderSummary](nil)
		productSummaries = projection.NewMemoryStore(analyticsdomain.ProductSummary.Clone)
		forecasts = projection.NewMemoryStore(insightsdomain.Forecast.Clone)
		histories = projection.NewMemoryStore(insightsdomain.PurchaseHistory.Clone)
		auditStore = auditmemory.NewStore()
		searchStore = searchmemory.NewStore()
		shipmentStore = projection.NewMemoryStore[shippingdomain.Shipment](nil).WithOutbox(events)
		shipmentOutbox = events
	}
	if locks == nil {
		locks = keyedlock.NewSharded(0)
	}
	return &ReadModels{
		analytics: analyticsapp.NewProjector(orderSummaries, productSummaries,
			analyticsapp.WithLogger(logger),
			analyticsapp.WithLocker(locks),
		),
		analyticsQueries: analyticsapp.NewQueryService(orderSummaries, productSummaries),
		insights: insightsapp.NewProjector(forecasts, histories,
			insightsapp.WithLogger(logger),
			insightsapp.WithLocker(locks),
		),
		insightsQueries: insightsapp.NewQueryService(forecasts, histories),
		audit:           auditapp.NewService(auditStore, auditapp.WithLogger(logger)),
		search: searchapp.NewService(searchStore,
			searchapp.WithLogger(logger),
			searchapp.WithLocker(locks),
		),
		shipping: shippingapp.NewService(shipmentStore,
			shippingapp.WithLogger(logger),
			shippingapp.WithLocker(locks),
		),
		ShipmentOutbox: shipmentOutbox,
	}
}

// Subscriptions lists one queue per projection.
func (r *ReadModels) Subscriptions() []Subscription {
	return []Subscription{
		{Queue: analyticsapp.QueueName, Topics: r.analytics.Topics(), Handler: r.analytics.Handle},
		{Queue: insightsapp.QueueName, Topics: r.insights.Topics(), Handler: r.insights.Handle},
		{Queue: auditapp.QueueName, Topics: r.audit.Topics(), Handler: r.audit.Handle},
		{Queue: searchapp.QueueName, Topics: r.search.Topics(), Handler: r.search.Handle},
		{Queue: shippingapp.QueueName, Topics: r.shipping.Topics(), Handler: r.shipping.Handle},
	}
}

// Handlers returns the read-model HTTP handlers.
func (r *ReadModels) Handlers() commerceserver.ApiHandleFunctions {
	return commerceserver.ApiHandleFunctions{
		AnalyticsAPI: commerceserver.NewAnalyticsAPI(r.analyticsQueries),
		AuditAPI:     commerceserver.NewAuditAPI(r.audit),
		InsightsAPI:  commerceserver.NewInsightsAPI(r.insightsQueries),
		SearchAPI:    commerceserver.NewSearchAPI(r.search),
		ShippingAPI:  commerceserver.NewShippingAPI(r.shipping),
	}
}
