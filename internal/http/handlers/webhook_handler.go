package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

type WebhookHandler struct {
	svc *service.EscrowService
	log *logrus.Entry
}

func NewWebhookHandler(s *service.EscrowService) *WebhookHandler {
	return &WebhookHandler{
		svc: s,
		log: logger.WithComponent("webhook_handler"),
	}
}

// HandleNotification POST /webhooks/payment — уведомление платёжного шлюза.
// Отвечает 200 даже при внутренней ошибке обработки, иначе шлюз зальёт нас
// повторными доставками; отказ логируется и виден в мониторинге по логам.
func (h *WebhookHandler) HandleNotification(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		h.log.WithError(err).Warn("не удалось прочитать тело вебхука")
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		return
	}

	var raw struct {
		OrderID           string      `json:"order_id"`
		TransactionID     string      `json:"transaction_id"`
		StatusCode        string      `json:"status_code"`
		TransactionStatus string      `json:"transaction_status"`
		FraudStatus       string      `json:"fraud_status"`
		GrossAmount       json.Number `json:"gross_amount"`
		SignatureKey      string      `json:"signature_key"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		h.log.WithError(err).Warn("не удалось разобрать тело вебхука")
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		return
	}

	gross, err := raw.GrossAmount.Int64()
	if err != nil {
		h.log.WithField("gross_amount", raw.GrossAmount.String()).
			Warn("сумма вебхука не является целым числом")
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		return
	}

	n := service.GatewayNotification{
		ExternalOrderID:   raw.OrderID,
		TransactionID:     raw.TransactionID,
		StatusCode:        raw.StatusCode,
		TransactionStatus: raw.TransactionStatus,
		FraudStatus:       raw.FraudStatus,
		GrossAmount:       gross,
		Signature:         raw.SignatureKey,
		Raw:               body,
	}

	if err := h.svc.HandleGatewayNotification(c.Request.Context(), n); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"external_id": raw.OrderID,
			"status":      raw.TransactionStatus,
		}).Error("уведомление шлюза отклонено")
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
