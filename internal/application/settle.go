package application

import (
	"context"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
)

type capture struct {
	paymentID string
	signature string
	paidAt    time.Time
}

type settlement int

const (
	// settledNoop: the payment was already SUCCESS or REFUNDED.
	settledNoop settlement = iota
	settledPlaced
	settledOutOfStock
	// settledNotPayable: the order was already terminal, the capture was refunded.
	settledNotPayable
)

// settleCapture applies a captured online payment to an order loaded in tx.
// Both the client confirmation and the payment.captured webhook end here, so
// whichever commits second sees a settled payment and does nothing.
func (s *OrdersService) settleCapture(ctx context.Context, tx repository.Repositories, o *domain.Order, c capture) (settlement, []string, error) {
	if o.Payment.Status == domain.PaymentSuccess || o.Payment.Status == domain.PaymentRefunded {
		return settledNoop, nil, nil
	}

	if o.Status != domain.StatusPending {
		logger.Warn("capture for order that is no longer payable, refunding",
			"orderId", o.OrderID, "status", o.Status, "paymentId", c.paymentID)
		if err := o.UpdatePaymentStatus(domain.PaymentRefunded, domain.PaymentUpdate{
			GatewayPaymentID: c.paymentID,
			FailureReason:    "order is " + string(o.Status),
		}); err != nil {
			return 0, nil, err
		}
		if _, err := s.refundClaimed(ctx, tx.Orders(), o, 0); err != nil {
			return 0, nil, err
		}
		return settledNotPayable, nil, nil
	}

	if err := reserveStock(ctx, tx.Books(), o.Items); err != nil {
		ids, ok := asOutOfStock(err)
		if !ok {
			return 0, nil, err
		}
		if err := s.refundOutOfStock(ctx, tx, o, c.paymentID, ids); err != nil {
			return 0, nil, err
		}
		return settledOutOfStock, ids, nil
	}

	if err := o.UpdatePaymentStatus(domain.PaymentSuccess, domain.PaymentUpdate{
		GatewayPaymentID: c.paymentID,
		Signature:        c.signature,
		PaidAt:           c.paidAt,
	}); err != nil {
		return 0, nil, err
	}
	if err := o.UpdateStatus(domain.StatusPlaced); err != nil {
		return 0, nil, err
	}
	if err := tx.Carts().ClearCart(ctx, o.UserID); err != nil {
		return 0, nil, err
	}
	if err := tx.Orders().Update(ctx, o); err != nil {
		return 0, nil, err
	}
	return settledPlaced, nil, nil
}

// refundOutOfStock fails a paid order whose items ran out while the payment
// was in flight and gives the money back.
func (s *OrdersService) refundOutOfStock(ctx context.Context, tx repository.Repositories, o *domain.Order, paymentID string, ids []string) error {
	logger.Warn("items ran out before payment settled, refunding",
		"orderId", o.OrderID, "paymentId", paymentID, "outOfStock", ids)
	if err := o.UpdatePaymentStatus(domain.PaymentRefunded, domain.PaymentUpdate{
		GatewayPaymentID: paymentID,
		FailureReason:    "items out of stock",
	}); err != nil {
		return err
	}
	if err := o.UpdateStatus(domain.StatusFailed); err != nil {
		return err
	}
	_, err := s.refundClaimed(ctx, tx.Orders(), o, 0)
	return err
}

// refundClaimed persists o first, so a concurrent writer loses the version
// check before any money moves, then refunds and records the refund id. o
// must already carry its final state. amount 0 refunds in full.
func (s *OrdersService) refundClaimed(ctx context.Context, orders repository.OrderRepo, o *domain.Order, amount int64) (string, error) {
	if err := orders.Update(ctx, o); err != nil {
		return "", err
	}
	refund, err := s.gateway.InitiateRefund(ctx, o.Payment.GatewayPaymentID, amount)
	if err != nil {
		logger.Error("refund failed", "orderId", o.OrderID, "paymentId", o.Payment.GatewayPaymentID, "err", err)
		return "", err
	}
	if err := o.UpdatePaymentStatus(domain.PaymentRefunded, domain.PaymentUpdate{RefundID: refund.ID}); err != nil {
		return "", err
	}
	if err := orders.Update(ctx, o); err != nil {
		return "", err
	}
	s.metrics.refunds.Add(ctx, 1)
	logger.Info("payment refunded", "orderId", o.OrderID, "refundId", refund.ID, "amount", refund.Amount)
	return refund.ID, nil
}

func settlementEvent(st settlement) EventType {
	switch st {
	case settledPlaced:
		return EventOrderPlaced
	case settledOutOfStock:
		return EventOrderFailed
	case settledNotPayable:
		return EventOrderRefunded
	}
	return ""
}
