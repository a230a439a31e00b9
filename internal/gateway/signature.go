package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyPaymentSignature checks the signature returned to the checkout
// client: HMAC-SHA256 of "<order_id>|<payment_id>" keyed with the API secret.
func (r *Razorpay) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return validSignature([]byte(orderID+"|"+paymentID), signature, r.keySecret)
}

// VerifyWebhookSignature checks X-Razorpay-Signature against the raw request
// body using the webhook secret.
func (r *Razorpay) VerifyWebhookSignature(body []byte, signature string) bool {
	return validSignature(body, signature, r.webhookSecret)
}

func validSignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// Sign returns the hex encoded HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
