package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatePaymentStatus_MergesAllowedFields(t *testing.T) {
	o := newTestOrder(t, MethodRazorpay)
	o.Payment.GatewayOrderID = "order_abc"
	paidAt := time.Unix(1700000000, 0)

	err := o.UpdatePaymentStatus(PaymentSuccess, PaymentUpdate{
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
		PaidAt:           paidAt,
	})
	require.NoError(t, err)

	assert.Equal(t, PaymentSuccess, o.Payment.Status)
	assert.Equal(t, "pay_1", o.Payment.GatewayPaymentID)
	assert.Equal(t, "sig", o.Payment.GatewaySignature)
	assert.True(t, paidAt.Equal(*o.Payment.PaidAt))
	assert.Equal(t, "order_abc", o.Payment.GatewayOrderID)
	assert.Equal(t, MethodRazorpay, o.Payment.Method)
	assert.Equal(t, int64(54000), o.Payment.Amount)
}

func TestUpdatePaymentStatus_RejectsFieldsOutsideStatus(t *testing.T) {
	cases := []struct {
		status PaymentStatus
		update PaymentUpdate
	}{
		{PaymentSuccess, PaymentUpdate{FailureReason: "x"}},
		{PaymentSuccess, PaymentUpdate{RefundID: "rfnd_1"}},
		{PaymentFailed, PaymentUpdate{Signature: "sig"}},
		{PaymentFailed, PaymentUpdate{PaidAt: time.Now()}},
		{PaymentRefunded, PaymentUpdate{Signature: "sig"}},
		{PaymentPending, PaymentUpdate{GatewayPaymentID: "pay_1"}},
	}
	for _, tc := range cases {
		o := newTestOrder(t, MethodRazorpay)
		err := o.UpdatePaymentStatus(tc.status, tc.update)
		assert.ErrorIs(t, err, ErrPaymentFieldNotAllowed, tc.status)
		assert.Equal(t, PaymentPending, o.Payment.Status, "rejected update must not change status")
	}
}

func TestUpdatePaymentStatus_UnknownStatus(t *testing.T) {
	o := newTestOrder(t, MethodRazorpay)
	assert.Error(t, o.UpdatePaymentStatus("CHARGEBACK", PaymentUpdate{}))
}

func TestUpdatePaymentStatus_EmptyUpdateKeepsFields(t *testing.T) {
	o := newTestOrder(t, MethodRazorpay)
	require.NoError(t, o.UpdatePaymentStatus(PaymentFailed, PaymentUpdate{FailureReason: "declined"}))
	require.NoError(t, o.UpdatePaymentStatus(PaymentRefunded, PaymentUpdate{}))

	assert.Equal(t, PaymentRefunded, o.Payment.Status)
	assert.Equal(t, "declined", o.Payment.FailureReason)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusDelivered.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())
	assert.False(t, OrderStatus("LOST").Valid())
	assert.ElementsMatch(t, []OrderStatus{StatusConfirmed, StatusCancelled}, NextStatuses(StatusPlaced))
	assert.False(t, CanTransition(StatusShipped, StatusCancelled))
}
