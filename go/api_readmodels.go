package commerceserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	analyticsports "github.com/Apurer/go-commerce-saga/internal/domains/analytics/ports"
	auditports "github.com/Apurer/go-commerce-saga/internal/domains/audit/ports"
	insightsports "github.com/Apurer/go-commerce-saga/internal/domains/insights/ports"
	searchdomain "github.com/Apurer/go-commerce-saga/internal/domains/search/domain"
	searchports "github.com/Apurer/go-commerce-saga/internal/domains/search/ports"
	shippingdomain "github.com/Apurer/go-commerce-saga/internal/domains/shipping/domain"
	shippingports "github.com/Apurer/go-commerce-saga/internal/domains/shipping/ports"
)

// AnalyticsAPI serves the analytics read model.
type AnalyticsAPI struct {
	queries analyticsports.Queries
}

func NewAnalyticsAPI(queries analyticsports.Queries) *AnalyticsAPI {
	return &AnalyticsAPI{queries: queries}
}

// Get /v1/analytics/orders
func (api *AnalyticsAPI) ListOrderSummaries(c *gin.Context) {
	summaries, err := api.queries.ListOrderSummaries(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// Get /v1/analytics/products
func (api *AnalyticsAPI) ListProductSummaries(c *gin.Context) {
	summaries, err := api.queries.ListProductSummaries(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// Get /v1/analytics/revenue
func (api *AnalyticsAPI) Revenue(c *gin.Context) {
	report, err := api.queries.Revenue(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// InsightsAPI serves demand forecasts and purchase recommendations.
type InsightsAPI struct {
	queries insightsports.Queries
}

func NewInsightsAPI(queries insightsports.Queries) *InsightsAPI {
	return &InsightsAPI{queries: queries}
}

// Get /v1/insights/forecast/:productId
func (api *InsightsAPI) Forecast(c *gin.Context) {
	productID, ok := parseIDParam(c, "productId")
	if !ok {
		return
	}
	forecast, err := api.queries.Forecast(c.Request.Context(), productID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, forecast)
}

// Get /v1/insights/recommendations/:ownerId
func (api *InsightsAPI) Recommendations(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	recs, err := api.queries.Recommendations(c.Request.Context(), c.Param("ownerId"), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// AuditAPI serves the audit log.
type AuditAPI struct {
	queries auditports.Queries
}

func NewAuditAPI(queries auditports.Queries) *AuditAPI {
	return &AuditAPI{queries: queries}
}

// Get /v1/audit/logs
// Lists the newest entries first, capped by the optional limit query parameter
func (api *AuditAPI) List(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	entries, err := api.queries.List(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(entries))
}

// Get /v1/audit/logs/:topic
func (api *AuditAPI) ListByTopic(c *gin.Context) {
	entries, err := api.queries.ListByTopic(c.Request.Context(), c.Param("topic"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(entries))
}

// SearchAPI serves the product search read model.
type SearchAPI struct {
	queries searchports.Queries
}

func NewSearchAPI(queries searchports.Queries) *SearchAPI {
	return &SearchAPI{queries: queries}
}

// Get /v1/search/products
// Filters by q, category_id, tag_id, min_price, max_price and in_stock
func (api *SearchAPI) SearchProducts(c *gin.Context) {
	query, err := parseSearchQuery(c)
	if err != nil {
		respondBadRequest(c, err)
		return
	}
	entries, err := api.queries.Search(c.Request.Context(), query)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(entries))
}

func parseSearchQuery(c *gin.Context) (searchdomain.Query, error) {
	q := searchdomain.Query{Text: strings.TrimSpace(c.Query("q"))}
	var err error
	if q.CategoryID, err = optionalID(c, "category_id"); err != nil {
		return q, err
	}
	if q.TagID, err = optionalID(c, "tag_id"); err != nil {
		return q, err
	}
	if q.MinPrice, err = optionalPrice(c, "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = optionalPrice(c, "max_price"); err != nil {
		return q, err
	}
	if raw := strings.TrimSpace(c.Query("in_stock")); raw != "" {
		if q.InStockOnly, err = strconv.ParseBool(raw); err != nil {
			return q, fmt.Errorf("in_stock must be a boolean")
		}
	}
	return q, nil
}

func optionalID(c *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

func optionalPrice(c *gin.Context, name string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil || price.IsNegative() {
		return nil, fmt.Errorf("%s must be a non-negative number", name)
	}
	return &price, nil
}

// ShippingAPI serves shipments and lets operators advance them.
type ShippingAPI struct {
	queries shippingports.Queries
}

func NewShippingAPI(queries shippingports.Queries) *ShippingAPI {
	return &ShippingAPI{queries: queries}
}

// AdvanceShipmentRequest is the body of POST /v1/shipments/:orderId/status.
type AdvanceShipmentRequest struct {
	Status string `json:"status" binding:"required"`
}

// Get /v1/shipments
func (api *ShippingAPI) List(c *gin.Context) {
	shipments, err := api.queries.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(shipments))
}

// Get /v1/shipments/:orderId
func (api *ShippingAPI) GetByOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	shipment, err := api.queries.GetByOrder(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, shipment)
}

// Post /v1/shipments/:orderId/status
func (api *ShippingAPI) Advance(c *gin.Context) {
	orderID, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	var payload AdvanceShipmentRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBadRequest(c, err)
		return
	}
	shipment, err := api.queries.Advance(c.Request.Context(), orderID, shippingdomain.Status(strings.TrimSpace(payload.Status)))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, shipment)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
