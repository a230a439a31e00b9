package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/go-resty/resty/v2"
)

type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// Razorpay talks to the Razorpay REST API. Amounts are sent in minor units,
// which is what the API expects.
type Razorpay struct {
	client        *resty.Client
	keySecret     string
	webhookSecret string
}

func NewRazorpay(cfg Config) *Razorpay {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &Razorpay{
		client:        c,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
	}
}

type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

type refundRequest struct {
	Amount int64 `json:"amount,omitempty"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	var out Order
	var apiErr apiError

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", domain.ErrGateway, err)
	}
	if resp.IsError() {
		return nil, statusError("create order", resp.StatusCode(), apiErr)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: create order: empty order id", domain.ErrGateway)
	}
	return &out, nil
}

// InitiateRefund refunds amount (minor units) of a captured payment. Zero
// refunds the full captured amount.
func (r *Razorpay) InitiateRefund(ctx context.Context, paymentID string, amount int64) (*Refund, error) {
	var out Refund
	var apiErr apiError

	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("paymentID", paymentID).
		SetBody(refundRequest{Amount: amount}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/payments/{paymentID}/refund")
	if err != nil {
		return nil, fmt.Errorf("%w: refund %s: %v", domain.ErrGateway, paymentID, err)
	}
	if resp.IsError() {
		return nil, statusError("refund "+paymentID, resp.StatusCode(), apiErr)
	}
	return &out, nil
}

func statusError(op string, status int, e apiError) error {
	desc := e.Error.Description
	if desc == "" {
		desc = http.StatusText(status)
	}
	return fmt.Errorf("%w: %s: %d %s %s", domain.ErrGateway, op, status, e.Error.Code, desc)
}
