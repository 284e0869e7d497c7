package application

import (
	"fmt"

	"github.com/Apurer/go-commerce-saga/internal/contracts"
	"github.com/Apurer/go-commerce-saga/internal/domains/orders/domain"
	"github.com/Apurer/go-commerce-saga/internal/platform/eventbus"
)

// Payload renders the full order snapshot carried by every orders event.
func Payload(order *domain.Order) contracts.OrderPayload {
	items := make([]contracts.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, contracts.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.InexactFloat64(),
			Discount:    item.Discount.InexactFloat64(),
		})
	}
	return contracts.OrderPayload{
		OrderID:       order.ID,
		OwnerID:       order.OwnerID,
		Total:         order.Total.InexactFloat64(),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		RefundStatus:  string(order.RefundStatus),
		PaymentMethod: order.PaymentMethod,
		Reason:        order.Reason,
		Items:         items,
	}
}

// envelopes converts pending domain events into outbox envelopes stamped
// with the version the order will have after the write. Each write carries at
// most one event so sequences stay unique per order.
func envelopes(order *domain.Order, nextVersion int64) ([]eventbus.Envelope, error) {
	events := order.Events()
	if len(events) == 0 {
		return nil, nil
	}
	if len(events) > 1 {
		return nil, fmt.Errorf("order %d: %d events pending in a single write", order.ID, len(events))
	}
	env, err := eventbus.NewEnvelope(
		eventbus.TopicOrders,
		events[0].EventName(),
		eventbus.OriginKey(contracts.OriginOrder, order.ID),
		nextVersion,
		Payload(order),
	)
	if err != nil {
		return nil, err
	}
	env.OccurredAt = events[0].OccurredAt().UTC()
	return []eventbus.Envelope{env}, nil
}
