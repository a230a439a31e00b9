package application

import "github.com/RaikyD/bookstore-orders-service/internal/domain"

// FailureReason classifies an unsuccessful, but handled, operation.
type FailureReason string

const (
	ReasonOutOfStock         FailureReason = "OUT_OF_STOCK"
	ReasonInvalidAddress     FailureReason = "INVALID_ADDRESS"
	ReasonPaymentInit        FailureReason = "PAYMENT_INIT_FAILED"
	ReasonVerificationFailed FailureReason = "VERIFICATION_FAILED"
	ReasonNotPayable         FailureReason = "NOT_PAYABLE"
)

type CreateOrderResult struct {
	Success        bool          `json:"success"`
	Order          *domain.Order `json:"order,omitempty"`
	GatewayOrderID string        `json:"gatewayOrderId,omitempty"`
	OutOfStockIDs  []string      `json:"outOfStockIds,omitempty"`
	AlreadyExists  bool          `json:"alreadyExists,omitempty"`
	Reason         FailureReason `json:"reason,omitempty"`
	Message        string        `json:"message"`
}

type ConfirmPaymentResult struct {
	Success       bool          `json:"success"`
	Order         *domain.Order `json:"order,omitempty"`
	OutOfStockIDs []string      `json:"outOfStockIds,omitempty"`
	Reason        FailureReason `json:"reason,omitempty"`
	Message       string        `json:"message"`
}

type CancelOrderResult struct {
	Success  bool          `json:"success"`
	Order    *domain.Order `json:"order,omitempty"`
	RefundID string        `json:"refundId,omitempty"`
	Message  string        `json:"message"`
}

type RefundResult struct {
	Success  bool          `json:"success"`
	Order    *domain.Order `json:"order,omitempty"`
	RefundID string        `json:"refundId"`
	Message  string        `json:"message"`
}

type WebhookResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
