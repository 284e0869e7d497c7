// Package contracts holds the JSON payloads carried in event envelopes.
// Every payload is a full snapshot of its entity; a field that must be
// cleared is sent as an explicit empty value, never omitted.
package contracts

// OrderItem is one line of an order snapshot.
type OrderItem struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
}

// OrderPayload is the data of every event on the orders topic.
type OrderPayload struct {
	OrderID       int64       `json:"order_id"`
	OwnerID       string      `json:"owner_id"`
	Total         float64     `json:"total"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"payment_status"`
	RefundStatus  string      `json:"refund_status"`
	PaymentMethod string      `json:"payment_method"`
	Reason        string      `json:"reason"`
	Items         []OrderItem `json:"items"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProductPayload is the data of product_* events. product_deleted carries at
// least the id.
type ProductPayload struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	Category    *Category `json:"category"`
	Tags        []Tag     `json:"tags"`
}

// PromotionRef describes one active promotion on a product.
type PromotionRef struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue float64 `json:"discount_value"`
}

// PromotionPayload is the data of promotion_* events. ActivePromotions is the
// product's complete active set after the change; an empty list clears it.
// Consumers decode it as a pointer so a missing field can be told apart from
// an explicit empty one.
type PromotionPayload struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	ActivePromotions *[]PromotionRef `json:"active_promotions"`
}

// NewPromotionPayload always encodes active_promotions, as [] when empty.
func NewPromotionPayload(promotionID, productID int64, active []PromotionRef) PromotionPayload {
	list := make([]PromotionRef, len(active))
	copy(list, active)
	return PromotionPayload{ID: promotionID, ProductID: productID, ActivePromotions: &list}
}

// ShipmentPayload is the data of shipment_* events.
type ShipmentPayload struct {
	ShipmentID     string `json:"shipment_id"`
	OrderID        int64  `json:"order_id"`
	Status         string `json:"status"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

// Origin key kinds.
const (
	OriginOrder             = "order"
	OriginProduct           = "product"
	OriginProductPromotions = "product-promotions"
	OriginShipment          = "shipment"
)
