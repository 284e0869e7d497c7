package commerceserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	ordermapper "github.com/Apurer/go-commerce-saga/internal/domains/orders/adapters/http/mapper"
	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	orderports "github.com/Apurer/go-commerce-saga/internal/domains/orders/ports"
)

// IdempotencyKeyHeader lets clients retry POST /v1/orders safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// OrdersAPI wires HTTP transport with the order saga service and workflows.
type OrdersAPI struct {
	service   orderports.Service
	workflows orderports.WorkflowOrchestrator
}

// NewOrdersAPI creates an OrdersAPI. workflows may be nil, in which case
// orders are created by the service directly.
func NewOrdersAPI(service orderports.Service, workflows orderports.WorkflowOrchestrator) *OrdersAPI {
	return &OrdersAPI{service: service, workflows: workflows}
}

// Post /v1/orders
// Creates an order, reserving stock and applying promotions
func (api *OrdersAPI) CreateOrder(c *gin.Context) {
	var payload ordermapper.CreateOrderRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBadRequest(c, err)
		return
	}
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	order, err := api.createOrder(c.Request.Context(), ordermapper.ToCreateOrderInput(payload, key))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ordermapper.FromDomainOrder(order))
}

func (api *OrdersAPI) createOrder(ctx context.Context, input ordertypes.CreateOrderInput) (*domain.Order, error) {
	if api.workflows != nil {
		return api.workflows.CreateOrder(ctx, input)
	}
	return api.service.CreateOrder(ctx, input)
}

// Get /v1/orders
// Lists orders, optionally filtered by owner_id
func (api *OrdersAPI) ListOrders(c *gin.Context) {
	orders, err := api.service.ListOrders(c.Request.Context(), ordertypes.ListOrdersInput{OwnerID: strings.TrimSpace(c.Query("owner_id"))})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordermapper.FromDomainOrders(orders))
}

// Get /v1/orders/:orderId
func (api *OrdersAPI) GetOrder(c *gin.Context) {
	id, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	order, err := api.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordermapper.FromDomainOrder(order))
}

// Post /v1/orders/:orderId/checkout
// Charges the order. A declined payment still answers 200 with payment_status failed.
func (api *OrdersAPI) Checkout(c *gin.Context) {
	id, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	var payload ordermapper.CheckoutRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBadRequest(c, err)
		return
	}
	order, err := api.service.Checkout(c.Request.Context(), ordermapper.ToCheckoutInput(id, payload))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordermapper.FromDomainOrder(order))
}

// Post /v1/orders/:orderId/refund
func (api *OrdersAPI) RequestRefund(c *gin.Context) {
	id, ok := parseIDParam(c, "orderId")
	if !ok {
		return
	}
	var payload ordermapper.RefundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondBadRequest(c, err)
			return
		}
	}
	order, err := api.service.RequestRefund(c.Request.Context(), ordermapper.ToRefundInput(id, payload))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ordermapper.FromDomainOrder(order))
}
