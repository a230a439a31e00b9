package application

import (
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
)

type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderPlaced    EventType = "order.placed"
	EventPaymentFailed  EventType = "order.payment_failed"
	EventOrderFailed    EventType = "order.failed"
	EventOrderCancelled EventType = "order.cancelled"
	EventOrderRefunded  EventType = "order.refunded"
	EventStatusChanged  EventType = "order.status_changed"
	EventOrderShipped   EventType = "order.shipped"
	EventOrderExpired   EventType = "order.expired"
)

type OrderEvent struct {
	Type          EventType            `json:"type"`
	OrderID       string               `json:"orderId"`
	UserID        string               `json:"userId"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	TotalPrice    int64                `json:"totalPrice"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

func NewOrderEvent(typ EventType, o *domain.Order) OrderEvent {
	return OrderEvent{
		Type:          typ,
		OrderID:       o.OrderID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.Payment.Status,
		PaymentMethod: o.Payment.Method,
		TotalPrice:    o.TotalPrice,
		OccurredAt:    time.Now().UTC(),
	}
}
