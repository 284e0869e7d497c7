package mapper

import (
	"time"

	ordertypes "github.com/Apurer/go-commerce-saga/internal/domains/orders/application/types"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
)

// CreateOrderRequest is the body of POST /v1/orders.
type CreateOrderRequest struct {
	OwnerID string             `json:"owner_id"`
	Items   []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CheckoutRequest is the body of POST /v1/orders/:orderId/checkout.
type CheckoutRequest struct {
	PaymentMethod string `json:"payment_method"`
	PaymentToken  string `json:"payment_token"`
}

// RefundRequest is the body of POST /v1/orders/:orderId/refund.
type RefundRequest struct {
	Reason string `json:"reason"`
}

// Order is the transport representation of an order.
type Order struct {
	ID            int64       `json:"id"`
	OwnerID       string      `json:"owner_id"`
	TotalAmount   float64     `json:"total_amount"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"payment_status"`
	RefundStatus  string      `json:"refund_status"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ProductID       int64   `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	DiscountApplied float64 `json:"discount_applied"`
	PromotionID     int64   `json:"promotion_id,omitempty"`
}

// ToCreateOrderInput converts the request body; the idempotency key comes
// from the Idempotency-Key header.
func ToCreateOrderInput(req CreateOrderRequest, idempotencyKey string) ordertypes.CreateOrderInput {
	items := make([]ordertypes.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ordertypes.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return ordertypes.CreateOrderInput{OwnerID: req.OwnerID, Items: items, IdempotencyKey: idempotencyKey}
}

func ToCheckoutInput(orderID int64, req CheckoutRequest) ordertypes.CheckoutInput {
	return ordertypes.CheckoutInput{OrderID: orderID, PaymentMethod: req.PaymentMethod, Token: req.PaymentToken}
}

func ToRefundInput(orderID int64, req RefundRequest) ordertypes.RefundInput {
	return ordertypes.RefundInput{OrderID: orderID, Reason: req.Reason}
}

// FromDomainOrder converts a domain order to the transport representation.
func FromDomainOrder(order *domain.Order) Order {
	if order == nil {
		return Order{}
	}
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			Price:           item.UnitPrice.InexactFloat64(),
			DiscountApplied: item.Discount.InexactFloat64(),
			PromotionID:     item.PromotionID,
		})
	}
	return Order{
		ID:            order.ID,
		OwnerID:       order.OwnerID,
		TotalAmount:   order.Total.InexactFloat64(),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		RefundStatus:  string(order.RefundStatus),
		PaymentMethod: order.PaymentMethod,
		Reason:        order.Reason,
		Items:         items,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func FromDomainOrders(orders []*domain.Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, order := range orders {
		out = append(out, FromDomainOrder(order))
	}
	return out
}
