package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

const (
	webhookPaymentCaptured = "payment.captured"
	webhookPaymentFailed   = "payment.failed"
	webhookRefundCreated   = "refund.created"
)

type webhookEvent struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	CreatedAt int64  `json:"created_at"`
}

func (e *webhookEvent) payment() *paymentEntity {
	if e.Payload.Payment == nil {
		return nil
	}
	return &e.Payload.Payment.Entity
}

// occurredAt prefers the event timestamp, then the entity's.
func (e *webhookEvent) occurredAt(entity int64) time.Time {
	switch {
	case e.CreatedAt > 0:
		return time.Unix(e.CreatedAt, 0).UTC()
	case entity > 0:
		return time.Unix(entity, 0).UTC()
	}
	return time.Now().UTC()
}

// WebhookReconciler applies gateway server-to-server events. Every event is
// applied at most once, guarded by the current payment status.
type WebhookReconciler struct {
	orders *OrdersService
}

func NewWebhookReconciler(orders *OrdersService) *WebhookReconciler {
	return &WebhookReconciler{orders: orders}
}

// Handle verifies body against signature and applies the event. It returns
// domain.ErrVerificationFailed for a bad signature; events that are unknown or
// reference unknown orders are acknowledged without changes.
func (w *WebhookReconciler) Handle(ctx context.Context, body []byte, signature string) (res *WebhookResult, err error) {
	s := w.orders
	ctx, span := s.startSpan(ctx, "HandleWebhook")
	defer func() { endSpan(span, err) }()

	if !s.gateway.VerifyWebhookSignature(body, signature) {
		logger.Warn("webhook rejected: bad signature")
		return nil, domain.ErrVerificationFailed
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		logger.Warn("webhook payload is not valid json, ignoring", "err", err)
		return &WebhookResult{Message: "Malformed payload ignored"}, nil
	}
	span.SetAttributes(attribute.String("webhook.event", ev.Event))

	switch ev.Event {
	case webhookPaymentCaptured:
		return w.paymentCaptured(ctx, &ev)
	case webhookPaymentFailed:
		return w.paymentFailed(ctx, &ev)
	case webhookRefundCreated:
		return w.refundCreated(ctx, &ev)
	}
	logger.Info("webhook event ignored", "event", ev.Event)
	return &WebhookResult{Success: true, Message: "Event ignored"}, nil
}

func (w *WebhookReconciler) paymentCaptured(ctx context.Context, ev *webhookEvent) (*WebhookResult, error) {
	s := w.orders
	p := ev.payment()
	if p == nil || p.OrderID == "" {
		logger.Warn("payment.captured without payment entity, ignoring")
		return &WebhookResult{Success: true, Message: "Event ignored"}, nil
	}

	var order *domain.Order
	var st settlement
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		o, err := tx.Orders().FindByGatewayOrderID(ctx, p.OrderID)
		if err != nil {
			return err
		}
		order = o
		st, _, err = s.settleCapture(ctx, tx, o, capture{
			paymentID: p.ID,
			paidAt:    ev.occurredAt(p.CreatedAt),
		})
		return err
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Warn("payment.captured for unknown gateway order", "gatewayOrderId", p.OrderID)
		return &WebhookResult{Success: true, Message: "Order not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	logger.Info("payment.captured applied", "orderId", order.OrderID, "paymentId", p.ID, "settlement", st)
	if typ := settlementEvent(st); typ != "" {
		s.publish(ctx, typ, order)
	}
	return &WebhookResult{Success: true, Message: "Payment captured processed"}, nil
}

func (w *WebhookReconciler) paymentFailed(ctx context.Context, ev *webhookEvent) (*WebhookResult, error) {
	s := w.orders
	p := ev.payment()
	if p == nil || p.OrderID == "" {
		logger.Warn("payment.failed without payment entity, ignoring")
		return &WebhookResult{Success: true, Message: "Event ignored"}, nil
	}
	reason := p.ErrorDescription
	if reason == "" {
		reason = "payment failed"
	}

	var order *domain.Order
	changed := false
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		changed = false
		o, err := tx.Orders().FindByGatewayOrderID(ctx, p.OrderID)
		if err != nil {
			return err
		}
		order = o
		switch o.Payment.Status {
		case domain.PaymentSuccess, domain.PaymentRefunded:
			return nil
		case domain.PaymentFailed:
			if o.Status == domain.StatusFailed {
				return nil
			}
		}
		if err := o.UpdatePaymentStatus(domain.PaymentFailed, domain.PaymentUpdate{
			GatewayPaymentID: p.ID,
			FailureReason:    reason,
		}); err != nil {
			return err
		}
		if domain.CanTransition(o.Status, domain.StatusFailed) {
			if err := o.UpdateStatus(domain.StatusFailed); err != nil {
				return err
			}
		}
		changed = true
		return tx.Orders().Update(ctx, o)
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Warn("payment.failed for unknown gateway order", "gatewayOrderId", p.OrderID)
		return &WebhookResult{Success: true, Message: "Order not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if changed {
		logger.Info("payment.failed applied", "orderId", order.OrderID, "reason", reason)
		s.publish(ctx, EventPaymentFailed, order)
	}
	return &WebhookResult{Success: true, Message: "Payment failure processed"}, nil
}

func (w *WebhookReconciler) refundCreated(ctx context.Context, ev *webhookEvent) (*WebhookResult, error) {
	s := w.orders
	var paymentID, refundID string
	if ev.Payload.Refund != nil {
		paymentID = ev.Payload.Refund.Entity.PaymentID
		refundID = ev.Payload.Refund.Entity.ID
	}
	if p := ev.payment(); paymentID == "" && p != nil {
		paymentID = p.ID
	}
	if paymentID == "" {
		logger.Warn("refund.created without payment id, ignoring")
		return &WebhookResult{Success: true, Message: "Event ignored"}, nil
	}

	var order *domain.Order
	changed := false
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		changed = false
		o, err := tx.Orders().FindByGatewayPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}
		order = o
		if o.Payment.Status == domain.PaymentRefunded && (refundID == "" || o.Payment.RefundID != "") {
			return nil
		}
		if err := o.UpdatePaymentStatus(domain.PaymentRefunded, domain.PaymentUpdate{RefundID: refundID}); err != nil {
			return err
		}
		changed = true
		return tx.Orders().Update(ctx, o)
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Warn("refund.created for unknown payment", "paymentId", paymentID)
		return &WebhookResult{Success: true, Message: "Order not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if changed {
		logger.Info("refund.created applied", "orderId", order.OrderID, "refundId", refundID)
		s.publish(ctx, EventOrderRefunded, order)
	}
	return &WebhookResult{Success: true, Message: "Refund processed"}, nil
}
