package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Order payment and refund states as carried in order snapshots.
const (
	PaymentPaid    = "paid"
	RefundRefunded = "refunded"
)

// OrderSummary is the analytics view of one order.
type OrderSummary struct {
	OrderID       int64           `json:"order_id"`
	OwnerID       string          `json:"owner_id"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	RefundStatus  string          `json:"refund_status"`
	ItemCount     int             `json:"item_count"`
}

// PromotionSummary is one active promotion on a product.
type PromotionSummary struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// ProductSummary is the analytics view of one product.
type ProductSummary struct {
	ProductID        int64              `json:"product_id"`
	Name             string             `json:"name"`
	Price            decimal.Decimal    `json:"price"`
	Stock            int                `json:"stock"`
	Category         string             `json:"category"`
	Tags             []string           `json:"tags"`
	ActivePromotions []PromotionSummary `json:"active_promotions"`
}

// Clone returns a copy that shares no slices with p.
func (p ProductSummary) Clone() ProductSummary {
	p.Tags = slices.Clone(p.Tags)
	p.ActivePromotions = slices.Clone(p.ActivePromotions)
	return p
}

// RevenueReport aggregates order summaries.
type RevenueReport struct {
	PaidOrders     int             `json:"paid_orders"`
	RefundedOrders int             `json:"refunded_orders"`
	GrossRevenue   decimal.Decimal `json:"gross_revenue"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	NetRevenue     decimal.Decimal `json:"net_revenue"`
}

// BuildRevenueReport sums paid totals and subtracts refunded ones. An order
// counts as paid when its payment status is paid, whatever its refund state.
func BuildRevenueReport(orders []OrderSummary) RevenueReport {
	report := RevenueReport{
		GrossRevenue:   decimal.Zero,
		RefundedAmount: decimal.Zero,
	}
	for _, o := range orders {
		if o.PaymentStatus != PaymentPaid {
			continue
		}
		report.PaidOrders++
		report.GrossRevenue = report.GrossRevenue.Add(o.Total)
		if o.RefundStatus == RefundRefunded {
			report.RefundedOrders++
			report.RefundedAmount = report.RefundedAmount.Add(o.Total)
		}
	}
	report.NetRevenue = report.GrossRevenue.Sub(report.RefundedAmount)
	return report
}
