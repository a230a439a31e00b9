package presentation

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/application"
	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
)

const (
	UserIDHeader    = "X-User-ID"
	AdminKeyHeader  = "X-Admin-Key"
	SignatureHeader = "X-Razorpay-Signature"

	maxWebhookBody = 1 << 20
)

type ctxKey int

const userIDKey ctxKey = iota

type HandlerConfig struct {
	AdminKey string
	// RazorpayKeyID is the public key id handed to the checkout client.
	RazorpayKeyID string
}

type OrdersHandler struct {
	svc   *application.OrdersService
	hooks *application.WebhookReconciler
	cfg   HandlerConfig
}

func NewOrdersHandler(svc *application.OrdersService, hooks *application.WebhookReconciler, cfg HandlerConfig) *OrdersHandler {
	return &OrdersHandler{svc: svc, hooks: hooks, cfg: cfg}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{orderId}", h.GetOrder)
		r.Post("/{orderId}/verify-payment", h.VerifyPayment)
		r.Post("/{orderId}/cancel", h.CancelOrder)
	})

	r.Post("/webhooks/razorpay", h.RazorpayWebhook)
	r.Get("/config/razorpay", h.RazorpayConfig)

	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/", h.AdminListOrders)
		r.Get("/{orderId}", h.AdminGetOrder)
		r.Patch("/{orderId}/status", h.UpdateStatus)
		r.Put("/{orderId}/delivery", h.UpdateDelivery)
		r.Post("/{orderId}/refund", h.Refund)
	})
}

// requireUser reads the caller id set by the upstream auth layer.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if uid == "" {
			helpers.HttpError(w, http.StatusUnauthorized, "missing "+UserIDHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}

func (h *OrdersHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(AdminKeyHeader)
		if h.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.AdminKey)) != 1 {
			helpers.HttpError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in application.CreateOrderInput
	if err := helpers.DecodeJSON(r.Body, &in); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if key := r.Header.Get("Idempotency-Key"); in.IdempotencyKey == "" && key != "" {
		in.IdempotencyKey = key
	}
	in.UserID = userID(r)

	res, err := h.svc.CreateOrder(r.Context(), in)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}

	status := http.StatusCreated
	switch {
	case res.AlreadyExists:
		status = http.StatusOK
	case !res.Success:
		status = failureStatus(res.Reason)
	}
	helpers.WriteJSON(w, status, res)
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	orders, err := h.svc.ListUserOrders(r.Context(), userID(r), limit, offset)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetUserOrder(r.Context(), chi.URLParam(r, "orderId"), userID(r))
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var in application.ConfirmPaymentInput
	if err := helpers.DecodeJSON(r.Body, &in); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if in.GatewayPaymentID == "" || in.Signature == "" {
		helpers.HttpError(w, http.StatusBadRequest, "razorpayPaymentId and razorpaySignature are required")
		return
	}
	in.OrderID = chi.URLParam(r, "orderId")
	in.UserID = userID(r)

	res, err := h.svc.ConfirmPayment(r.Context(), in)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = failureStatus(res.Reason)
	}
	helpers.WriteJSON(w, status, res)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var body reasonRequest
	if err := helpers.DecodeOptionalJSON(r.Body, &body); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.svc.CancelOrder(r.Context(), chi.URLParam(r, "orderId"), userID(r), body.Reason)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// RazorpayWebhook acknowledges everything it could process, including events
// it does not care about, so the gateway stops redelivering them.
func (h *OrdersHandler) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	res, err := h.hooks.Handle(r.Context(), body, r.Header.Get(SignatureHeader))
	if errors.Is(err, domain.ErrVerificationFailed) {
		helpers.WriteJSON(w, http.StatusUnauthorized, application.WebhookResult{Message: "Invalid signature"})
		return
	}
	if err != nil {
		logger.Error("webhook processing failed", "err", err)
		helpers.WriteJSON(w, http.StatusInternalServerError, application.WebhookResult{Message: "Webhook processing failed"})
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) RazorpayConfig(w http.ResponseWriter, _ *http.Request) {
	if h.cfg.RazorpayKeyID == "" {
		helpers.HttpError(w, http.StatusServiceUnavailable, "payment gateway not configured")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]string{"keyId": h.cfg.RazorpayKeyID},
	})
}

func (h *OrdersHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := application.ListOrdersInput{
		Status:        domain.OrderStatus(q.Get("status")),
		PaymentStatus: domain.PaymentStatus(q.Get("paymentStatus")),
		PaymentMethod: domain.PaymentMethod(q.Get("paymentMethod")),
		Search:        q.Get("search"),
	}
	in.Page, _ = strconv.Atoi(q.Get("page"))
	in.Limit, _ = strconv.Atoi(q.Get("limit"))

	var err error
	if in.From, err = parseDate(q.Get("startDate"), false); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid startDate")
		return
	}
	if in.To, err = parseDate(q.Get("endDate"), true); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid endDate")
		return
	}

	page, err := h.svc.ListOrders(r.Context(), in)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*application.OrderPage
	}{true, page})
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func parseDate(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (h *OrdersHandler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, o)
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := helpers.DecodeJSON(r.Body, &body); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	o, err := h.svc.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderId"), body.Status)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}

func (h *OrdersHandler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	var body application.DeliveryInput
	if err := helpers.DecodeJSON(r.Body, &body); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	o, err := h.svc.UpdateDeliveryDetails(r.Context(), chi.URLParam(r, "orderId"), body)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}

func (h *OrdersHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var body application.RefundInput
	if err := helpers.DecodeOptionalJSON(r.Body, &body); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.svc.RefundOrder(r.Context(), chi.URLParam(r, "orderId"), body)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

func failureStatus(reason application.FailureReason) int {
	switch reason {
	case application.ReasonOutOfStock, application.ReasonNotPayable:
		return http.StatusConflict
	case application.ReasonInvalidAddress, application.ReasonVerificationFailed:
		return http.StatusBadRequest
	case application.ReasonPaymentInit:
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}
