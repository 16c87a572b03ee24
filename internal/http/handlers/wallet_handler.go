package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

type WalletHandler struct {
	svc *service.WalletService
}

func NewWalletHandler(s *service.WalletService) *WalletHandler {
	return &WalletHandler{svc: s}
}

// GetWallet GET /wallet
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	wallet, err := h.svc.GetOrCreateWallet(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// GetSummary GET /wallet/summary?period_from=RFC3339
func (h *WalletHandler) GetSummary(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var periodFrom *time.Time
	if v := c.Query("period_from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period_from должен быть в формате RFC3339"})
			return
		}
		periodFrom = &parsed
	}

	summary, err := h.svc.Summary(c.Request.Context(), userID, periodFrom)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListEntries GET /wallet/entries
func (h *WalletHandler) ListEntries(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	limit, offset := common.GetPagination(c)
	entries, err := h.svc.Entries(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
