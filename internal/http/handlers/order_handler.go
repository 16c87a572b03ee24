package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/storage"
)

type OrderHandler struct {
	svc     *service.OrderService
	storage *storage.DeliveryStorage
}

func NewOrderHandler(s *service.OrderService, st *storage.DeliveryStorage) *OrderHandler {
	return &OrderHandler{svc: s, storage: st}
}

// CreateOrder POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req service.CreateOrderInput
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	order, err := h.svc.CreateOrder(c.Request.Context(), userID, req)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrder GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.svc.GetOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListMyOrders GET /orders/my
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	asBuyer, asSeller, err := h.svc.ListMyOrders(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"as_buyer":  asBuyer,
		"as_seller": asSeller,
	})
}

// ConfirmOrder POST /orders/:id/confirm
func (h *OrderHandler) ConfirmOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.svc.ConfirmOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// StartWork POST /orders/:id/start
func (h *OrderHandler) StartWork(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.svc.StartWork(c.Request.Context(), userID, orderID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Deliver POST /orders/:id/deliver — multipart-форма с файлами результата.
func (h *OrderHandler) Deliver(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ожидается multipart-форма с файлами"})
		return
	}

	var note *string
	if v := c.PostForm("note"); v != "" {
		note = &v
	}

	files := []service.DeliveryFile{}
	for _, fh := range form.File["files"] {
		src, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать файл"})
			return
		}
		relPath, _, err := h.storage.Save(c.Request.Context(), orderID, fh.Filename, src)
		src.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		files = append(files, service.DeliveryFile{
			FileName: fh.Filename,
			FilePath: relPath,
			Note:     note,
		})
	}

	order, err := h.svc.Deliver(c.Request.Context(), userID, orderID, files)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// RequestRevision POST /orders/:id/revision
func (h *OrderHandler) RequestRevision(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Comment string `json:"comment"`
	}
	_ = c.ShouldBindJSON(&req)

	order, err := h.svc.RequestRevision(c.Request.Context(), userID, orderID, req.Comment)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Approve POST /orders/:id/approve
func (h *OrderHandler) Approve(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.svc.Approve(c.Request.Context(), userID, orderID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Cancel POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	order, err := h.svc.Cancel(c.Request.Context(), userID, orderID, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// AddAttachment POST /orders/:id/attachments — файл требований к черновику.
func (h *OrderHandler) AddAttachment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ожидается файл в поле file"})
		return
	}
	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать файл"})
		return
	}
	defer src.Close()

	relPath, _, err := h.storage.Save(c.Request.Context(), orderID, fh.Filename, src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.AddAttachment(c.Request.Context(), userID, orderID, fh.Filename, relPath); err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file_path": relPath})
}
