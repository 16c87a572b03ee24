package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

func TestSignatureRoundTrip(t *testing.T) {
	sig := Signature("server-key", "order-abc-1", "200", 100000)

	assert.True(t, VerifySignature("server-key", "order-abc-1", "200", 100000, sig))
	assert.False(t, VerifySignature("server-key", "order-abc-1", "200", 100001, sig))
	assert.False(t, VerifySignature("server-key", "order-abc-2", "200", 100000, sig))
	assert.False(t, VerifySignature("other-key", "order-abc-1", "200", 100000, sig))
}

func TestSignatureEmptyMismatch(t *testing.T) {
	assert.False(t, VerifySignature("server-key", "order-abc-1", "200", 100000, ""))
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw   string
		fraud bool
		want  string
	}{
		{"capture", false, models.PaymentStatusSettlement},
		{"settlement", false, models.PaymentStatusSettlement},
		{"Success", false, models.PaymentStatusSettlement},
		{"pending", false, models.PaymentStatusPending},
		{"deny", false, models.PaymentStatusFailed},
		{"expire", false, models.PaymentStatusExpired},
		{"cancel", false, models.PaymentStatusCancelled},
		{"refund", false, models.PaymentStatusRefund},
		{"partial_refund", false, models.PaymentStatusRefund},
		{"что-то-неизвестное", false, models.PaymentStatusPending},
		{"settlement", true, models.PaymentStatusFailed},
		{"capture", true, models.PaymentStatusFailed},
	}

	for _, tt := range tests {
		got := NormalizeStatus(tt.raw, tt.fraud)
		assert.Equal(t, tt.want, got, "raw=%s fraud=%v", tt.raw, tt.fraud)
	}
}
