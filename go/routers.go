// Package commerceserver exposes the order saga and the read models over HTTP.
package commerceserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route is the information for every URI.
type Route struct {
	// Name is the name of this Route.
	Name string
	// Method is the string for the HTTP method. ex) GET, POST etc..
	Method string
	// Pattern is the pattern of the URI.
	Pattern string
	// HandlerFunc is the handler function of this route.
	HandlerFunc gin.HandlerFunc
}

// ApiHandleFunctions groups the handlers mounted by NewRouter. Nil members
// leave their routes unmounted.
type ApiHandleFunctions struct {
	OrdersAPI    *OrdersAPI
	AnalyticsAPI *AnalyticsAPI
	AuditAPI     *AuditAPI
	InsightsAPI  *InsightsAPI
	SearchAPI    *SearchAPI
	ShippingAPI  *ShippingAPI
	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics http.Handler
}

// NewRouter returns a new router.
func NewRouter(handleFunctions ApiHandleFunctions) *gin.Engine {
	return NewRouterWithGinEngine(gin.Default(), handleFunctions)
}

// NewRouterWithGinEngine adds routes to an existing gin engine.
func NewRouterWithGinEngine(router *gin.Engine, handleFunctions ApiHandleFunctions) *gin.Engine {
	for _, route := range getRoutes(handleFunctions) {
		if route.HandlerFunc == nil {
			route.HandlerFunc = DefaultHandleFunc
		}
		router.Handle(route.Method, route.Pattern, route.HandlerFunc)
	}
	return router
}

// DefaultHandleFunc answers routes without a handler.
func DefaultHandleFunc(c *gin.Context) {
	c.String(http.StatusNotImplemented, "501 not implemented")
}

func getRoutes(h ApiHandleFunctions) []Route {
	metrics := h.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	routes := []Route{
		{"Healthz", http.MethodGet, "/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }},
		{"Metrics", http.MethodGet, "/metrics", gin.WrapH(metrics)},
	}
	if api := h.OrdersAPI; api != nil {
		routes = append(routes,
			Route{"CreateOrder", http.MethodPost, "/v1/orders", api.CreateOrder},
			Route{"ListOrders", http.MethodGet, "/v1/orders", api.ListOrders},
			Route{"GetOrder", http.MethodGet, "/v1/orders/:orderId", api.GetOrder},
			Route{"CheckoutOrder", http.MethodPost, "/v1/orders/:orderId/checkout", api.Checkout},
			Route{"RefundOrder", http.MethodPost, "/v1/orders/:orderId/refund", api.RequestRefund},
		)
	}
	if api := h.AnalyticsAPI; api != nil {
		routes = append(routes,
			Route{"ListOrderSummaries", http.MethodGet, "/v1/analytics/orders", api.ListOrderSummaries},
			Route{"ListProductSummaries", http.MethodGet, "/v1/analytics/products", api.ListProductSummaries},
			Route{"GetRevenue", http.MethodGet, "/v1/analytics/revenue", api.Revenue},
		)
	}
	if api := h.AuditAPI; api != nil {
		routes = append(routes,
			Route{"ListAuditLogs", http.MethodGet, "/v1/audit/logs", api.List},
			Route{"ListAuditLogsByTopic", http.MethodGet, "/v1/audit/logs/:topic", api.ListByTopic},
		)
	}
	if api := h.InsightsAPI; api != nil {
		routes = append(routes,
			Route{"GetDemandForecast", http.MethodGet, "/v1/insights/forecast/:productId", api.Forecast},
			Route{"GetRecommendations", http.MethodGet, "/v1/insights/recommendations/:ownerId", api.Recommendations},
		)
	}
	if api := h.SearchAPI; api != nil {
		routes = append(routes,
			Route{"SearchProducts", http.MethodGet, "/v1/search/products", api.SearchProducts},
		)
	}
	if api := h.ShippingAPI; api != nil {
		routes = append(routes,
			Route{"ListShipments", http.MethodGet, "/v1/shipments", api.List},
			Route{"GetShipment", http.MethodGet, "/v1/shipments/:orderId", api.GetByOrder},
			Route{"AdvanceShipment", http.MethodPost, "/v1/shipments/:orderId/status", api.Advance},
		)
	}
	return routes
}
