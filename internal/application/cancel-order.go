package application

import (
	"context"
	"errors"
	"strings"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

const defaultCancelReason = "Cancelled by user"

// CancelOrder cancels an order on behalf of its owner, putting back stock and
// refunding a captured online payment.
func (s *OrdersService) CancelOrder(ctx context.Context, orderID, userID, reason string) (res *CancelOrderResult, err error) {
	ctx, span := s.startSpan(ctx, "CancelOrder",
		attribute.String("order.id", orderID),
		attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(reason) == "" {
		reason = defaultCancelReason
	}

	err = s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		res = nil
		if _, err := tx.Users().FindByID(ctx, userID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUnauthorized
			}
			return err
		}
		o, err := tx.Orders().FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.IsOwnedBy(userID) {
			return domain.ErrUnauthorized
		}

		refundID, err := s.cancelInTx(ctx, tx, o, reason)
		if err != nil {
			return err
		}
		res = &CancelOrderResult{Success: true, Order: o, RefundID: refundID, Message: "Order cancelled successfully"}
		if refundID != "" {
			res.Message = "Order cancelled and payment refunded"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order cancelled", "orderId", orderID, "refundId", res.RefundID)
	s.publish(ctx, EventOrderCancelled, res.Order)
	return res, nil
}

// cancelInTx moves o to CANCELLED and runs the compensations its current
// state calls for. It returns the refund id when money was given back.
func (s *OrdersService) cancelInTx(ctx context.Context, tx repository.Repositories, o *domain.Order, reason string) (string, error) {
	stockTaken := o.StockCommitted()
	refund := o.RequiresRefund()

	if err := o.Cancel(reason); err != nil {
		return "", err
	}
	if stockTaken {
		if err := restoreStock(ctx, tx.Books(), o.Items); err != nil {
			return "", err
		}
	}
	if !refund {
		return "", tx.Orders().Update(ctx, o)
	}

	if err := o.UpdatePaymentStatus(domain.PaymentRefunded, domain.PaymentUpdate{}); err != nil {
		return "", err
	}
	return s.refundClaimed(ctx, tx.Orders(), o, 0)
}
