package application

import (
	"context"
	"fmt"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

type ConfirmPaymentInput struct {
	OrderID          string `json:"-"`
	UserID           string `json:"-"`
	GatewayOrderID   string `json:"razorpayOrderId"`
	GatewayPaymentID string `json:"razorpayPaymentId"`
	Signature        string `json:"razorpaySignature"`
}

// ConfirmPayment is the client side of payment reconciliation. A bad
// signature fails the order for good; it is never retried.
func (s *OrdersService) ConfirmPayment(ctx context.Context, in ConfirmPaymentInput) (res *ConfirmPaymentResult, err error) {
	ctx, span := s.startSpan(ctx, "ConfirmPayment",
		attribute.String("order.id", in.OrderID),
		attribute.String("gateway.payment_id", in.GatewayPaymentID))
	defer func() { endSpan(span, err) }()

	var event EventType
	err = s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		res, event = nil, ""
		o, err := tx.Orders().FindByOrderID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if in.UserID != "" && !o.IsOwnedBy(in.UserID) {
			return domain.ErrUnauthorized
		}
		if o.Payment.Method != domain.MethodRazorpay {
			return fmt.Errorf("%w: order %s is not paid online", domain.ErrInvalidOrder, o.OrderID)
		}
		if o.Payment.Status == domain.PaymentSuccess {
			res = &ConfirmPaymentResult{Success: true, Order: o, Message: "Payment already verified"}
			return nil
		}

		valid := in.GatewayOrderID == o.Payment.GatewayOrderID &&
			s.gateway.VerifyPaymentSignature(o.Payment.GatewayOrderID, in.GatewayPaymentID, in.Signature)
		if !valid {
			res = &ConfirmPaymentResult{Order: o, Reason: ReasonVerificationFailed, Message: "Payment verification failed"}
			if o.Status != domain.StatusPending || o.Payment.Status != domain.PaymentPending {
				return nil
			}
			if err := o.UpdatePaymentStatus(domain.PaymentFailed, domain.PaymentUpdate{
				GatewayPaymentID: in.GatewayPaymentID,
				FailureReason:    domain.ErrVerificationFailed.Error(),
			}); err != nil {
				return err
			}
			if err := o.UpdateStatus(domain.StatusFailed); err != nil {
				return err
			}
			event = EventPaymentFailed
			return tx.Orders().Update(ctx, o)
		}

		if o.Status == domain.StatusPending && o.Payment.Status == domain.PaymentPending {
			short, err := shortItems(ctx, tx.Books(), o.Items)
			if err != nil {
				return err
			}
			if len(short) > 0 {
				if err := s.refundOutOfStock(ctx, tx, o, in.GatewayPaymentID, short); err != nil {
					return err
				}
				event = EventOrderFailed
				res = confirmOutOfStock(o, short)
				return nil
			}
		}

		st, short, err := s.settleCapture(ctx, tx, o, capture{
			paymentID: in.GatewayPaymentID,
			signature: in.Signature,
			paidAt:    time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		event = settlementEvent(st)
		switch st {
		case settledPlaced:
			res = &ConfirmPaymentResult{Success: true, Order: o, Message: "Payment verified successfully"}
		case settledOutOfStock:
			res = confirmOutOfStock(o, short)
		default:
			res = &ConfirmPaymentResult{Order: o, Reason: ReasonNotPayable, Message: "Order is no longer payable"}
			if st == settledNotPayable {
				res.Message = "Order is no longer payable, payment refunded"
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("payment confirmation handled", "orderId", in.OrderID, "success", res.Success, "reason", res.Reason)
	if event != "" {
		s.publish(ctx, event, res.Order)
	}
	return res, nil
}

func confirmOutOfStock(o *domain.Order, ids []string) *ConfirmPaymentResult {
	return &ConfirmPaymentResult{
		Order:         o,
		OutOfStockIDs: ids,
		Reason:        ReasonOutOfStock,
		Message:       "Some items went out of stock, payment refunded",
	}
}
