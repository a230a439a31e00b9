package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/gateway"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

type CreateOrderItem struct {
	BookID    string `json:"bookId"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type CreateOrderInput struct {
	IdempotencyKey string               `json:"idempotencyKey"`
	UserID         string               `json:"-"`
	Email          string               `json:"email"`
	AddressID      string               `json:"addressId"`
	Items          []CreateOrderItem    `json:"items"`
	Subtotal       int64                `json:"subtotal"`
	DeliveryCharge int64                `json:"deliveryCharge"`
	TotalPrice     int64                `json:"totalPrice"`
	Method         domain.PaymentMethod `json:"paymentMethod"`
}

func (in CreateOrderInput) validate() error {
	switch {
	case strings.TrimSpace(in.IdempotencyKey) == "":
		return fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidOrder)
	case in.UserID == "":
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidOrder)
	case in.AddressID == "":
		return fmt.Errorf("%w: address id is required", domain.ErrInvalidOrder)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: order must have at least one item", domain.ErrInvalidOrder)
	case !in.Method.Valid():
		return fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidOrder, in.Method)
	case in.TotalPrice != in.Subtotal+in.DeliveryCharge:
		return fmt.Errorf("%w: total %d does not match subtotal %d + delivery %d",
			domain.ErrInvalidOrder, in.TotalPrice, in.Subtotal, in.DeliveryCharge)
	}
	return nil
}

// CreateOrder places an order exactly once per idempotency key. Stock is only
// taken here for COD; online payments take it when the capture settles.
func (s *OrdersService) CreateOrder(ctx context.Context, in CreateOrderInput) (res *CreateOrderResult, err error) {
	ctx, span := s.startSpan(ctx, "CreateOrder",
		attribute.String("user.id", in.UserID),
		attribute.String("payment.method", string(in.Method)))
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.Orders().FindByIdempotencyKey(ctx, in.IdempotencyKey)
	if err == nil {
		return replayResult(existing, in.UserID)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	err = s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		res = nil
		items, short, err := snapshotItems(ctx, tx.Books(), in.Items)
		if err != nil {
			return err
		}
		if len(short) > 0 {
			res = outOfStockResult(short)
			return errAbort
		}

		orderID := domain.NewBusinessOrderID()
		var gatewayOrderID string
		if in.Method == domain.MethodRazorpay {
			gwOrder, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
				Amount:   in.TotalPrice,
				Currency: s.currency,
				Receipt:  orderID,
				Notes: map[string]string{
					"orderId": orderID,
					"userId":  in.UserID,
					"email":   in.Email,
				},
			})
			if err != nil {
				logger.Error("gateway order creation failed", "orderId", orderID, "err", err)
				res = &CreateOrderResult{Reason: ReasonPaymentInit, Message: "Failed to initialize payment"}
				return errAbort
			}
			gatewayOrderID = gwOrder.ID
		}

		address, err := tx.Addresses().FindShippingAddressSnapshot(ctx, in.UserID, in.AddressID)
		if errors.Is(err, domain.ErrNotFound) {
			res = &CreateOrderResult{Reason: ReasonInvalidAddress, Message: "Invalid address"}
			return errAbort
		}
		if err != nil {
			return err
		}

		order, err := domain.NewOrder(domain.NewOrderParams{
			OrderID:         orderID,
			UserID:          in.UserID,
			Email:           in.Email,
			ShippingAddress: *address,
			Items:           items,
			Subtotal:        in.Subtotal,
			DeliveryCharge:  in.DeliveryCharge,
			TotalPrice:      in.TotalPrice,
			Method:          in.Method,
			Currency:        s.currency,
			GatewayOrderID:  gatewayOrderID,
			IdempotencyKey:  in.IdempotencyKey,
		})
		if err != nil {
			return err
		}

		if in.Method == domain.MethodCOD {
			if err := reserveStock(ctx, tx.Books(), order.Items); err != nil {
				if ids, ok := asOutOfStock(err); ok {
					res = outOfStockResult(ids)
					return errAbort
				}
				return err
			}
			if err := tx.Carts().ClearCart(ctx, in.UserID); err != nil {
				return err
			}
			if err := order.UpdateStatus(domain.StatusPlaced); err != nil {
				return err
			}
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		res = &CreateOrderResult{
			Success:        true,
			Order:          order,
			GatewayOrderID: gatewayOrderID,
			Message:        "Order created successfully",
		}
		return nil
	})

	switch {
	case errors.Is(err, errAbort):
		logger.Info("order not created", "userId", in.UserID, "reason", res.Reason, "outOfStock", res.OutOfStockIDs)
		return res, nil
	case errors.Is(err, domain.ErrDuplicateOrder):
		// a concurrent request with the same key won the insert
		existing, ferr := s.store.Orders().FindByIdempotencyKey(ctx, in.IdempotencyKey)
		if ferr != nil {
			return nil, ferr
		}
		return replayResult(existing, in.UserID)
	case err != nil:
		return nil, err
	}

	logger.Info("order created", "orderId", res.Order.OrderID, "method", in.Method,
		"status", res.Order.Status, "gatewayOrderId", res.GatewayOrderID)
	s.publish(ctx, EventOrderCreated, res.Order)
	if res.Order.Status == domain.StatusPlaced {
		s.publish(ctx, EventOrderPlaced, res.Order)
	}
	return res, nil
}

// snapshotItems copies catalog data into line items and collects every item
// that cannot be served. Unknown books count as out of stock.
func snapshotItems(ctx context.Context, books repository.BookRepo, in []CreateOrderItem) ([]domain.OrderItem, []string, error) {
	items := make([]domain.OrderItem, 0, len(in))
	var short []string
	for _, it := range in {
		book, err := books.FindBookDetails(ctx, it.BookID)
		if errors.Is(err, domain.ErrNotFound) {
			short = append(short, it.BookID)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if book.Stock < it.Quantity {
			short = append(short, it.BookID)
			continue
		}
		item, err := domain.NewOrderItem(it.BookID, it.Quantity, it.UnitPrice, book.Title, book.Category, book.CoverImage)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}
	return items, short, nil
}

// replayResult answers a repeated idempotency key. A key already used by
// another user is a conflict and does not reveal that user's order.
func replayResult(existing *domain.Order, userID string) (*CreateOrderResult, error) {
	if !existing.IsOwnedBy(userID) {
		logger.Warn("idempotency key reused by another user", "userId", userID)
		return nil, fmt.Errorf("%w: idempotency key already used", domain.ErrDuplicateOrder)
	}
	return existingOrderResult(existing), nil
}

func existingOrderResult(o *domain.Order) *CreateOrderResult {
	res := &CreateOrderResult{
		Success:       true,
		Order:         o,
		AlreadyExists: true,
		Message:       "Order already exists",
	}
	if o.Payment.Method == domain.MethodRazorpay && o.Payment.GatewayOrderID != "" {
		res.GatewayOrderID = o.Payment.GatewayOrderID
		res.Message = "Order already exists, continue payment with the existing gateway order"
	}
	return res
}

func outOfStockResult(ids []string) *CreateOrderResult {
	return &CreateOrderResult{
		OutOfStockIDs: ids,
		Reason:        ReasonOutOfStock,
		Message:       "Some items are out of stock",
	}
}
