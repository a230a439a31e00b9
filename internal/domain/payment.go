package domain

import (
	"fmt"
	"time"
)

type PaymentMethod string

const (
	MethodRazorpay PaymentMethod = "RAZORPAY"
	MethodCOD      PaymentMethod = "COD"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodRazorpay || m == MethodCOD
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// PaymentDetails amounts are in minor currency units (paise for INR).
type PaymentDetails struct {
	Method           PaymentMethod `json:"method"`
	Status           PaymentStatus `json:"status"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	GatewayOrderID   string        `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string        `json:"gatewayPaymentId,omitempty"`
	GatewaySignature string        `json:"gatewaySignature,omitempty"`
	RefundID         string        `json:"refundId,omitempty"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	FailureReason    string        `json:"failureReason,omitempty"`
}

func (p PaymentDetails) IsPaid() bool     { return p.Status == PaymentSuccess }
func (p PaymentDetails) IsRefunded() bool { return p.Status == PaymentRefunded }

// PaymentUpdate carries the optional fields merged into PaymentDetails on a
// status change. Zero values are left untouched.
type PaymentUpdate struct {
	GatewayPaymentID string
	Signature        string
	RefundID         string
	PaidAt           time.Time
	FailureReason    string
}

type paymentField int

const (
	fieldPaymentID paymentField = iota
	fieldSignature
	fieldRefundID
	fieldPaidAt
	fieldFailureReason
)

var paymentFieldNames = map[paymentField]string{
	fieldPaymentID:     "gatewayPaymentId",
	fieldSignature:     "signature",
	fieldRefundID:      "refundId",
	fieldPaidAt:        "paidAt",
	fieldFailureReason: "failureReason",
}

var allowedPaymentFields = map[PaymentStatus]map[paymentField]bool{
	PaymentPending:  {},
	PaymentSuccess:  {fieldPaymentID: true, fieldSignature: true, fieldPaidAt: true},
	PaymentFailed:   {fieldPaymentID: true, fieldFailureReason: true},
	PaymentRefunded: {fieldRefundID: true, fieldPaymentID: true, fieldFailureReason: true},
}

func (u PaymentUpdate) setFields() []paymentField {
	var fields []paymentField
	if u.GatewayPaymentID != "" {
		fields = append(fields, fieldPaymentID)
	}
	if u.Signature != "" {
		fields = append(fields, fieldSignature)
	}
	if u.RefundID != "" {
		fields = append(fields, fieldRefundID)
	}
	if !u.PaidAt.IsZero() {
		fields = append(fields, fieldPaidAt)
	}
	if u.FailureReason != "" {
		fields = append(fields, fieldFailureReason)
	}
	return fields
}

func (p *PaymentDetails) apply(status PaymentStatus, u PaymentUpdate) error {
	if !status.Valid() {
		return fmt.Errorf("unknown payment status %q", status)
	}
	allowed := allowedPaymentFields[status]
	for _, f := range u.setFields() {
		if !allowed[f] {
			return fmt.Errorf("%w: %s on %s", ErrPaymentFieldNotAllowed, paymentFieldNames[f], status)
		}
	}

	p.Status = status
	if u.GatewayPaymentID != "" {
		p.GatewayPaymentID = u.GatewayPaymentID
	}
	if u.Signature != "" {
		p.GatewaySignature = u.Signature
	}
	if u.RefundID != "" {
		p.RefundID = u.RefundID
	}
	if !u.PaidAt.IsZero() {
		t := u.PaidAt.UTC()
		p.PaidAt = &t
	}
	if u.FailureReason != "" {
		p.FailureReason = u.FailureReason
	}
	return nil
}
