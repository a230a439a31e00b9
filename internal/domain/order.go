package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID              uuid.UUID        `json:"id"`
	OrderID         string           `json:"orderId"`
	UserID          string           `json:"userId"`
	Email           string           `json:"email"`
	ShippingAddress ShippingAddress  `json:"shippingAddress"`
	Items           []OrderItem      `json:"items"`
	Subtotal        int64            `json:"subtotal"`
	DeliveryCharge  int64            `json:"deliveryCharge"`
	TotalPrice      int64            `json:"totalPrice"`
	Status          OrderStatus      `json:"status"`
	Payment         PaymentDetails   `json:"paymentDetails"`
	Delivery        *DeliveryDetails `json:"deliveryDetails,omitempty"`
	Cancellation    *Cancellation    `json:"cancellation,omitempty"`
	IdempotencyKey  string           `json:"-"`
	Version         int              `json:"-"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

type NewOrderParams struct {
	OrderID         string
	UserID          string
	Email           string
	ShippingAddress ShippingAddress
	Items           []OrderItem
	Subtotal        int64
	DeliveryCharge  int64
	TotalPrice      int64
	Method          PaymentMethod
	Currency        string
	GatewayOrderID  string
	IdempotencyKey  string
}

// NewOrder builds a PENDING order with a PENDING payment. Amounts are stored
// as given.
func NewOrder(p NewOrderParams) (*Order, error) {
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrInvalidOrder)
	}
	if p.OrderID == "" || p.UserID == "" {
		return nil, fmt.Errorf("%w: order id and user id are required", ErrInvalidOrder)
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("%w: order must have at least one item", ErrInvalidOrder)
	}
	for _, it := range p.Items {
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: bad line item %s", ErrInvalidOrder, it.BookID)
		}
	}
	if !p.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrder, p.Method)
	}
	if p.TotalPrice < 0 || p.Subtotal < 0 || p.DeliveryCharge < 0 {
		return nil, fmt.Errorf("%w: amounts cannot be negative", ErrInvalidOrder)
	}

	items := make([]OrderItem, len(p.Items))
	copy(items, p.Items)
	now := time.Now().UTC()

	return &Order{
		ID:              uuid.New(),
		OrderID:         p.OrderID,
		UserID:          p.UserID,
		Email:           p.Email,
		ShippingAddress: p.ShippingAddress,
		Items:           items,
		Subtotal:        p.Subtotal,
		DeliveryCharge:  p.DeliveryCharge,
		TotalPrice:      p.TotalPrice,
		Status:          StatusPending,
		Payment: PaymentDetails{
			Method:         p.Method,
			Status:         PaymentPending,
			Amount:         p.TotalPrice,
			Currency:       p.Currency,
			GatewayOrderID: p.GatewayOrderID,
		},
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewBusinessOrderID returns a human readable id such as ORD-LZ3K9Q1M-7F2A1.
func NewBusinessOrderID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:5]
	return strings.ToUpper("ORD-" + ts + "-" + suffix)
}

// UpdateStatus moves the order along a legal edge. SHIPPED needs delivery
// details, DELIVERED settles the payment (cash collected on delivery).
func (o *Order) UpdateStatus(to OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}
	if to == StatusShipped && o.Delivery == nil {
		return ErrDeliveryRequired
	}

	now := time.Now().UTC()
	if to == StatusDelivered {
		o.Payment.Status = PaymentSuccess
		if o.Payment.PaidAt == nil {
			o.Payment.PaidAt = &now
		}
		if o.Delivery != nil && o.Delivery.DeliveredAt == nil {
			o.Delivery.DeliveredAt = &now
		}
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

func (o *Order) CanBeCancelled() bool {
	switch o.Status {
	case StatusPending, StatusPlaced, StatusConfirmed:
		return true
	}
	return false
}

// Cancel records the reason and moves the order to CANCELLED.
func (o *Order) Cancel(reason string) error {
	if !o.CanBeCancelled() {
		return &TransitionError{From: o.Status, To: StatusCancelled}
	}
	o.markCancelled(reason)
	return nil
}

// ForceCancel is the administrative override used by refunds; it ignores the
// edge table.
func (o *Order) ForceCancel(reason string) {
	o.markCancelled(reason)
}

func (o *Order) markCancelled(reason string) {
	now := time.Now().UTC()
	o.Status = StatusCancelled
	o.Cancellation = &Cancellation{Reason: reason, CancelledAt: now}
	o.UpdatedAt = now
}

// UpdatePaymentStatus changes the payment sub-state. It is not bound by the
// order status table.
func (o *Order) UpdatePaymentStatus(status PaymentStatus, u PaymentUpdate) error {
	if err := o.Payment.apply(status, u); err != nil {
		return err
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// AttachDelivery is only possible once the order is CONFIRMED.
func (o *Order) AttachDelivery(d DeliveryDetails) error {
	if o.Status != StatusConfirmed {
		return fmt.Errorf("%w: delivery details can only be set on confirmed orders (status %s)", ErrInvalidTransition, o.Status)
	}
	if strings.TrimSpace(d.Partner) == "" || strings.TrimSpace(d.TrackingID) == "" {
		return fmt.Errorf("%w: delivery partner and tracking id are required", ErrInvalidOrder)
	}
	if d.EstimatedDeliveryDate == nil && o.Delivery != nil {
		d.EstimatedDeliveryDate = o.Delivery.EstimatedDeliveryDate
	}
	o.Delivery = &d
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// StockCommitted reports whether inventory was taken for this order.
func (o *Order) StockCommitted() bool {
	switch o.Status {
	case StatusPlaced, StatusConfirmed, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// RequiresRefund is true when money was captured online for this order.
func (o *Order) RequiresRefund() bool {
	return o.Payment.Method == MethodRazorpay &&
		o.Payment.Status == PaymentSuccess &&
		o.Payment.GatewayPaymentID != ""
}

func (o *Order) IsOwnedBy(userID string) bool {
	return o.UserID == userID
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	copy(c.Items, o.Items)
	if o.Payment.PaidAt != nil {
		t := *o.Payment.PaidAt
		c.Payment.PaidAt = &t
	}
	if o.Delivery != nil {
		d := *o.Delivery
		if d.EstimatedDeliveryDate != nil {
			t := *d.EstimatedDeliveryDate
			d.EstimatedDeliveryDate = &t
		}
		if d.DeliveredAt != nil {
			t := *d.DeliveredAt
			d.DeliveredAt = &t
		}
		c.Delivery = &d
	}
	if o.Cancellation != nil {
		cc := *o.Cancellation
		c.Cancellation = &cc
	}
	return &c
}
