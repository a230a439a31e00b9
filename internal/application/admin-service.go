package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 100
	adminCancelReason = "Cancelled by admin"
	adminRefundReason = "Refunded by admin"
)

func (s *OrdersService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.store.Orders().FindByOrderID(ctx, orderID)
}

// GetUserOrder is GetOrder restricted to the order owner.
func (s *OrdersService) GetUserOrder(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	o, err := s.store.Orders().FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(userID) {
		return nil, domain.ErrUnauthorized
	}
	return o, nil
}

// ListUserOrders returns the user's orders, newest first.
func (s *OrdersService) ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	orders, err := s.store.Orders().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return orders, nil
}

type ListOrdersInput struct {
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	PaymentMethod domain.PaymentMethod
	From          *time.Time
	To            *time.Time
	Search        string
	Page          int
	Limit         int
}

type OrderPage struct {
	Orders      []*domain.Order `json:"orders"`
	TotalOrders int             `json:"totalOrders"`
	TotalPages  int             `json:"totalPages"`
	CurrentPage int             `json:"currentPage"`
}

// ListOrders is the admin listing over all users. Page is 1-based.
func (s *OrdersService) ListOrders(ctx context.Context, in ListOrdersInput) (*OrderPage, error) {
	switch {
	case in.Status != "" && !in.Status.Valid():
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidOrder, in.Status)
	case in.PaymentStatus != "" && !in.PaymentStatus.Valid():
		return nil, fmt.Errorf("%w: unknown payment status %q", domain.ErrInvalidOrder, in.PaymentStatus)
	case in.PaymentMethod != "" && !in.PaymentMethod.Valid():
		return nil, fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidOrder, in.PaymentMethod)
	case in.From != nil && in.To != nil && in.To.Before(*in.From):
		return nil, fmt.Errorf("%w: date range ends before it starts", domain.ErrInvalidOrder)
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	pageNo := in.Page
	if pageNo < 1 {
		pageNo = 1
	}

	orders, total, err := s.store.Orders().ListOrders(ctx, repository.OrderFilter{
		Status:        in.Status,
		PaymentStatus: in.PaymentStatus,
		PaymentMethod: in.PaymentMethod,
		CreatedFrom:   in.From,
		CreatedTo:     in.To,
		Search:        in.Search,
		Limit:         limit,
		Offset:        (pageNo - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return &OrderPage{
		Orders:      orders,
		TotalOrders: total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: pageNo,
	}, nil
}

// UpdateOrderStatus is the administrative status change. Moving to CANCELLED
// runs the same compensations as a user cancellation. PLACED and FAILED are
// only entered by order creation and payment settlement, which own the stock
// and payment side of those edges.
func (s *OrdersService) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (order *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "UpdateOrderStatus",
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(status)))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidOrder, status)
	}
	if !adminSettable(status) {
		return nil, fmt.Errorf("%w: %s cannot be set by an administrator", domain.ErrInvalidTransition, status)
	}

	err = s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		o, err := tx.Orders().FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		if status == domain.StatusCancelled {
			_, err := s.cancelInTx(ctx, tx, o, adminCancelReason)
			return err
		}
		if err := o.UpdateStatus(status); err != nil {
			return err
		}
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order status updated", "orderId", orderID, "status", status)
	if status == domain.StatusCancelled {
		s.publish(ctx, EventOrderCancelled, order)
	} else {
		s.publish(ctx, EventStatusChanged, order)
	}
	return order, nil
}

func adminSettable(status domain.OrderStatus) bool {
	switch status {
	case domain.StatusPending, domain.StatusPlaced, domain.StatusFailed:
		return false
	}
	return true
}

type DeliveryInput struct {
	Partner               string     `json:"partner"`
	TrackingID            string     `json:"trackingId"`
	EstimatedDeliveryDate *time.Time `json:"estimatedDeliveryDate,omitempty"`
}

// UpdateDeliveryDetails attaches courier details to a CONFIRMED order and
// ships it.
func (s *OrdersService) UpdateDeliveryDetails(ctx context.Context, orderID string, in DeliveryInput) (order *domain.Order, err error) {
	ctx, span := s.startSpan(ctx, "UpdateDeliveryDetails", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	err = s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		o, err := tx.Orders().FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		if err := o.AttachDelivery(domain.DeliveryDetails{
			Partner:               strings.TrimSpace(in.Partner),
			TrackingID:            strings.TrimSpace(in.TrackingID),
			EstimatedDeliveryDate: in.EstimatedDeliveryDate,
		}); err != nil {
			return err
		}
		if err := o.UpdateStatus(domain.StatusShipped); err != nil {
			return err
		}
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order shipped", "orderId", orderID, "partner", in.Partner, "trackingId", in.TrackingID)
	s.publish(ctx, EventOrderShipped, order)
	return order, nil
}

type RefundInput struct {
	// Amount in minor units; zero refunds the full captured amount.
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// RefundOrder is the administrative refund of a captured online payment. It
// does not look at the order status, and only puts stock back when a prior
// cancellation has not already done so.
func (s *OrdersService) RefundOrder(ctx context.Context, orderID string, in RefundInput) (res *RefundResult, err error) {
	ctx, span := s.startSpan(ctx, "RefundOrder",
		attribute.String("order.id", orderID),
		attribute.Int64("refund.amount", in.Amount))
	defer func() { endSpan(span, err) }()

	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = adminRefundReason
	}

	err = s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		res = nil
		o, err := tx.Orders().FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.RequiresRefund() {
			return fmt.Errorf("%w: order %s has no captured online payment (method %s, payment %s)",
				domain.ErrRefundNotAllowed, o.OrderID, o.Payment.Method, o.Payment.Status)
		}
		if in.Amount < 0 || in.Amount > o.Payment.Amount {
			return fmt.Errorf("%w: refund amount %d outside 0..%d", domain.ErrInvalidOrder, in.Amount, o.Payment.Amount)
		}

		if o.Status != domain.StatusCancelled && o.StockCommitted() {
			if err := restoreStock(ctx, tx.Books(), o.Items); err != nil {
				return err
			}
		}
		if err := o.UpdatePaymentStatus(domain.PaymentRefunded, domain.PaymentUpdate{FailureReason: reason}); err != nil {
			return err
		}
		o.ForceCancel(reason)

		refundID, err := s.refundClaimed(ctx, tx.Orders(), o, in.Amount)
		if err != nil {
			return err
		}
		res = &RefundResult{Success: true, Order: o, RefundID: refundID, Message: "Refund initiated successfully"}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("admin refund issued", "orderId", orderID, "refundId", res.RefundID, "amount", in.Amount)
	s.publish(ctx, EventOrderRefunded, res.Order)
	return res, nil
}
