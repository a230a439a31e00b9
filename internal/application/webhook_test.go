package application

import (
	"context"
	"testing"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *fixture) acceptWebhooks() {
	f.gw.On("VerifyWebhookSignature", mock.Anything, goodSig).Return(true).Maybe()
	f.gw.On("VerifyWebhookSignature", mock.Anything, badSig).Return(false).Maybe()
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.acceptWebhooks()
	o := f.placeOnline(t, "idem-1", "order_rzp_1", item("book-a", 2, 25000))

	body := webhookBody(t, "payment.captured", 1700000100, paymentPayload("pay_1", "order_rzp_1", ""))
	_, err := f.hooks.Handle(context.Background(), body, badSig)
	assert.ErrorIs(t, err, domain.ErrVerificationFailed)
	assert.Equal(t, domain.PaymentPending, f.order(t, o.OrderID).Payment.Status)
}

func TestWebhook_CapturedSettlesOnce(t *testing.T) {
	f := newFixture(t)
	f.acceptWebhooks()
	o := f.placeOnline(t, "idem-1", "order_rzp_1", item("book-a", 2, 25000))
	body := webhookBody(t, "payment.captured", 1700000100, paymentPayload("pay_1", "order_rzp_1", ""))

	for i := 0; i < 3; i++ {
		res, err := f.hooks.Handle(context.Background(), body, goodSig)
		require.NoError(t, err)
		assert.True(t, res.Success)
	}

	got := f.order(t, o.OrderID)
	assert.Equal(t, domain.StatusPlaced, got.Status)
	assert.Equal(t, domain.PaymentSuccess, got.Payment.Status)
	assert.Equal(t, "pay_1", got.Payment.GatewayPaymentID)
	require.NotNil(t, got.Payment.PaidAt)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), *got.Payment.PaidAt)
	assert.Equal(t, 3, f.store.Stock("book-a"))
	assert.Equal(t, 0, f.store.CartSize(userID))
}

func TestWebhook_CaptureAfterCancelIsRefunded(t *testing.T) {
	f := newFixture(t)
	f.acceptWebhooks()
	o := f.placeOnline(t, "idem-1", "order_rzp_1", item("book-a", 2, 25000))

	_, err := f.svc.CancelOrder(context.Background(), o.OrderID, userID, "changed my mind")
	require.NoError(t, err)

	f.gw.On("InitiateRefund", mock.Anything, "pay_1", int64(0)).
		Return(&gateway.Refund{ID: "rfnd_1", PaymentID: "pay_1"}, nil).Once()
	body := webhookBody(t, "payment.captured", 1700000100, paymentPayload("pay_1", "order_rzp_1", ""))
	res, err := f.hooks.Handle(context.Background(), body, goodSig)
	require.NoError(t, err)
	assert.True(t, res.Success)

	got := f.order(t, o.OrderID)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, domain.PaymentRefunded, got.Payment.Status)
	assert.Equal(t, "rfnd_1", got.Payment.RefundID)
	assert.Equal(t, 5, f.store.Stock("book-a"))
	f.gw.AssertExpectations(t)
}

func TestWebhook_PaymentFailed(t *testing.T) {
	f := newFixture(t)
	f.acceptWebhooks()
	o := f.placeOnline(t, "idem-1", "order_rzp_1", item("book-a", 2, 25000))

	body := webhookBody(t, "payment.failed", 1700000100, paymentPayload("pay_1", "order_rzp_1", "card declined"))
	res, err := f.hooks.Handle(context.Background(), body, goodSig)
	require.NoError(t, err)
	assert.True(t, res.Success)

	got := f.order(t, o.OrderID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.PaymentFailed, got.Payment.Status)
	assert.Equal(t, "card declined", got.Payment.FailureReason)
	assert.Contains(t, f.events.types(), EventPaymentFailed)
}

func TestWebhook_PaymentFailedIgnoredAfterSuccess(t *testing.T) {
	f := newFixture(t)
	f.acceptWebhooks()
	o := f.placePaid(t, "idem-1", "order_rzp_1", "pay_1", item("book-a", 2, 25000))

	body := webhookBody(t, "payment.failed", 1700000100, paymentPayload("pay_0", "order_rzp_1", "timeout"))
	res, err := f.hooks.Handle(context.Background(), body, goodSig)
	require.NoError(t, err)
	assert.True(t, res.Success)

	got := f.order(t, o.OrderID)
	assert.Equal(t, domain.StatusPlaced, got.Status)
	assert.Equal(t, domain.PaymentSuccess, got.Payment.Status)
	assert.Equal(t, "pay_1", got.Payment.GatewayPaymentID)
}

func TestWebhook_RefundCreatedFindsByPaymentID(t *testing.T) {
	f := newFixture(t)
	f.acceptWebhooks()
	o := f.placePaid(t, "idem-1", "order_rzp_1", "pay_1", item("book-a", 2, 25000))

	body := webhookBody(t, "refund.created", 1700000200, map[string]any{
		"refund": map[string]any{
			"entity": map[string]any{"id": "rfnd_9", "payment_id": "pay_1", "amount": 54000},
		},
	})
	res, err := f.hooks.Handle(context.Background(), body, goodSig)
	require.NoError(t, err)
	assert.True(t, res.Success)

	got := f.order(t, o.OrderID)
	assert.Equal(t, domain.PaymentRefunded, got.Payment.Status)
	assert.Equal(t, "rfnd_9", got.Payment.RefundID)
}

func TestWebhook_UnknownEventsAndOrdersAreAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.acceptWebhooks()

	res, err := f.hooks.Handle(context.Background(), webhookBody(t, "order.paid", 0, map[string]any{}), goodSig)
	require.NoError(t, err)
	assert.True(t, res.Success)

	body := webhookBody(t, "payment.captured", 0, paymentPayload("pay_1", "order_unknown", ""))
	res, err = f.hooks.Handle(context.Background(), body, goodSig)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = f.hooks.Handle(context.Background(), []byte("not json"), goodSig)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestWebhook_CaptureWithoutStockIsRefunded(t *testing.T) {
	f := newFixture(t)
	f.acceptWebhooks()
	o := f.placeOnline(t, "idem-1", "order_rzp_1", item("book-a", 2, 25000))
	f.store.PutBook(domain.BookDetails{ID: "book-a", Title: "Dune", Category: "fiction", Stock: 1})
	f.gw.On("InitiateRefund", mock.Anything, "pay_1", int64(0)).
		Return(&gateway.Refund{ID: "rfnd_1", PaymentID: "pay_1"}, nil).Once()

	body := webhookBody(t, "payment.captured", 1700000100, paymentPayload("pay_1", "order_rzp_1", ""))
	res, err := f.hooks.Handle(context.Background(), body, goodSig)
	require.NoError(t, err)
	assert.True(t, res.Success)

	got := f.order(t, o.OrderID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.PaymentRefunded, got.Payment.Status)
	assert.Equal(t, "rfnd_1", got.Payment.RefundID)
	assert.Equal(t, 1, f.store.Stock("book-a"), "conditional decrement took nothing")
	f.gw.AssertExpectations(t)
}
