package application

import (
	"context"

	"github.com/RaikyD/bookstore-orders-service/internal/gateway"
)

// PaymentGateway is the part of the payment provider the order core uses.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error)
	InitiateRefund(ctx context.Context, paymentID string, amount int64) (*gateway.Refund, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

type EventPublisher interface {
	Publish(ctx context.Context, e OrderEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }
