package gateway

import (
	"strings"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// NormalizeStatus приводит статус транзакции шлюза к внутреннему статусу
// платежа. Флаг фрода переводит событие в failed независимо от номинального
// статуса.
func NormalizeStatus(raw string, fraudFlag bool) string {
	if fraudFlag {
		return models.PaymentStatusFailed
	}

	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "capture", "settlement", "success", "succeeded", "paid":
		return models.PaymentStatusSettlement
	case "pending", "authorize":
		return models.PaymentStatusPending
	case "deny", "failure", "failed":
		return models.PaymentStatusFailed
	case "expire", "expired":
		return models.PaymentStatusExpired
	case "cancel", "cancelled", "canceled":
		return models.PaymentStatusCancelled
	case "refund", "partial_refund", "refunded":
		return models.PaymentStatusRefund
	default:
		return models.PaymentStatusPending
	}
}
