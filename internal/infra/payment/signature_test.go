package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, data []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	g := NewRazorpayDirectGateway("key_id", "key_secret", "wh_secret", "")

	t.Run("valid signature verifies", func(t *testing.T) {
		sig := sign("key_secret", []byte("order_1|pay_1"))
		if !g.VerifyPaymentSignature("order_1", "pay_1", sig) {
			t.Fatal("expected valid signature to verify")
		}
	})

	t.Run("wrong payment id fails", func(t *testing.T) {
		sig := sign("key_secret", []byte("order_1|pay_1"))
		if g.VerifyPaymentSignature("order_1", "pay_2", sig) {
			t.Fatal("expected signature over different payment to fail")
		}
	})

	t.Run("empty signature fails", func(t *testing.T) {
		if g.VerifyPaymentSignature("order_1", "pay_1", "") {
			t.Fatal("expected empty signature to fail")
		}
	})

	t.Run("tampered signature fails", func(t *testing.T) {
		sig := sign("key_secret", []byte("order_1|pay_1"))
		tampered := "0" + sig[1:]
		if tampered != sig && g.VerifyPaymentSignature("order_1", "pay_1", tampered) {
			t.Fatal("expected tampered signature to fail")
		}
	})
}

func TestVerifyWebhookSignature(t *testing.T) {
	g := NewRazorpayDirectGateway("key_id", "key_secret", "wh_secret", "")
	body := []byte(`{"event":"payment.captured","payload":{}}`)

	t.Run("valid body verifies", func(t *testing.T) {
		if !g.VerifyWebhookSignature(body, sign("wh_secret", body)) {
			t.Fatal("expected valid webhook signature to verify")
		}
	})

	t.Run("modified body fails", func(t *testing.T) {
		sig := sign("wh_secret", body)
		if g.VerifyWebhookSignature([]byte(`{"event":"payment.captured","payload":{"x":1}}`), sig) {
			t.Fatal("expected signature over different body to fail")
		}
	})

	t.Run("signature with wrong secret fails", func(t *testing.T) {
		if g.VerifyWebhookSignature(body, sign("other_secret", body)) {
			t.Fatal("expected signature from wrong secret to fail")
		}
	})

	t.Run("empty signature fails", func(t *testing.T) {
		if g.VerifyWebhookSignature(body, "") {
			t.Fatal("expected empty signature to fail")
		}
	})
}
