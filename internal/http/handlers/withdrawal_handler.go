package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

type WithdrawalHandler struct {
	svc *service.WithdrawalService
}

func NewWithdrawalHandler(s *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: s}
}

// Create POST /withdrawals
func (h *WithdrawalHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req service.CreateWithdrawalInput
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	w, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// ListMy GET /withdrawals
func (h *WithdrawalHandler) ListMy(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	limit, offset := common.GetPagination(c)
	items, err := h.svc.ListMy(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Get GET /withdrawals/:id
func (h *WithdrawalHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w, err := h.svc.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Cancel POST /withdrawals/:id/cancel
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w, err := h.svc.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// ListQueue GET /admin/withdrawals?status=pending — админская очередь.
func (h *WithdrawalHandler) ListQueue(c *gin.Context) {
	status := c.DefaultQuery("status", models.WithdrawalStatusPending)
	limit, offset := common.GetPagination(c)

	items, err := h.svc.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Approve POST /admin/withdrawals/:id/approve
func (h *WithdrawalHandler) Approve(c *gin.Context) {
	h.adminAction(c, h.svc.Approve)
}

// Reject POST /admin/withdrawals/:id/reject
func (h *WithdrawalHandler) Reject(c *gin.Context) {
	h.adminAction(c, h.svc.Reject)
}

// Complete POST /admin/withdrawals/:id/complete
func (h *WithdrawalHandler) Complete(c *gin.Context) {
	h.adminAction(c, h.svc.Complete)
}

// Fail POST /admin/withdrawals/:id/fail
func (h *WithdrawalHandler) Fail(c *gin.Context) {
	h.adminAction(c, h.svc.Fail)
}

func (h *WithdrawalHandler) adminAction(c *gin.Context, action func(ctx context.Context, adminID, id uuid.UUID, notes *string) (*models.Withdrawal, error)) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Notes *string `json:"notes"`
	}
	// тело опционально: approve и complete допускают запрос без заметок
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeValidation, "некорректное тело запроса"))
		return
	}

	w, err := action(c.Request.Context(), adminID, id, req.Notes)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
