package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

func newOrderFixture() (*OrderService, *mockOrderRepo, *mockCatalogRepo, *mockPaymentRepo, *mockUserReader, *mockGateway, *mockEscrowCoordinator, *recordingNotifier) {
	orders := new(mockOrderRepo)
	catalog := new(mockCatalogRepo)
	payments := new(mockPaymentRepo)
	users := new(mockUserReader)
	gw := new(mockGateway)
	escrow := new(mockEscrowCoordinator)
	notifier := &recordingNotifier{}
	svc := NewOrderService(&mockTxManager{}, orders, catalog, payments, users, gw, escrow, notifier, "midgate", "RUB", 24*time.Hour)
	return svc, orders, catalog, payments, users, gw, escrow, notifier
}

func TestOrderService_CreateOrder(t *testing.T) {
	svc, orders, catalog, _, _, _, _, _ := newOrderFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	sellerID := uuid.New()
	serviceID := uuid.New()

	catalog.On("GetByID", ctx, serviceID).Return(&models.Service{
		ID:           serviceID,
		SellerID:     sellerID,
		Title:        "Дизайн логотипа",
		Price:        100000,
		DeliveryDays: 5,
		MaxRevisions: 2,
		IsActive:     true,
	}, nil)
	orders.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)

	order, err := svc.CreateOrder(ctx, buyerID, CreateOrderInput{ServiceID: serviceID, Requirements: "синий фон"})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusDraft, order.Status)
	assert.Equal(t, int64(100000), order.Price)
	assert.Equal(t, 5, order.DeliveryDays)
	assert.Equal(t, 2, order.MaxRevisions)
	assert.Equal(t, sellerID, order.SellerID)
}

func TestOrderService_CreateOrder_InactiveService(t *testing.T) {
	svc, _, catalog, _, _, _, _, _ := newOrderFixture()
	ctx := context.Background()

	serviceID := uuid.New()
	catalog.On("GetByID", ctx, serviceID).Return(&models.Service{ID: serviceID, IsActive: false}, nil)

	_, err := svc.CreateOrder(ctx, uuid.New(), CreateOrderInput{ServiceID: serviceID})
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))
}

func TestOrderService_CreateOrder_OwnService(t *testing.T) {
	svc, _, catalog, _, _, _, _, _ := newOrderFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	serviceID := uuid.New()
	catalog.On("GetByID", ctx, serviceID).Return(&models.Service{ID: serviceID, SellerID: buyerID, IsActive: true}, nil)

	_, err := svc.CreateOrder(ctx, buyerID, CreateOrderInput{ServiceID: serviceID})
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))
}

func TestOrderService_ConfirmOrder(t *testing.T) {
	svc, orders, _, payments, users, gw, _, _ := newOrderFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	order := &models.Order{ID: orderID, BuyerID: buyerID, Title: "Логотип", Price: 100000, Status: models.OrderStatusDraft}

	orders.On("GetByID", ctx, orderID).Return(order, nil)
	users.On("GetByID", ctx, buyerID).Return(&models.User{ID: buyerID, Email: "buyer@example.com"}, nil)
	gw.On("CreateSession", ctx, orderID, int64(100000), "buyer@example.com", mock.Anything).Return(&gateway.Session{
		ExternalID:  "order-abc-1",
		Token:       "tok",
		RedirectURL: "https://pay.example/tok",
	}, nil)
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)
	payments.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)

	payment, err := svc.ConfirmOrder(ctx, buyerID, orderID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusWaitingPayment, order.Status)
	assert.Equal(t, "order-abc-1", payment.ExternalID)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.NotNil(t, payment.ExpiresAt)
}

func TestOrderService_ConfirmOrder_NotBuyer(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newOrderFixture()
	ctx := context.Background()

	orderID := uuid.New()
	orders.On("GetByID", ctx, orderID).Return(&models.Order{ID: orderID, BuyerID: uuid.New(), Status: models.OrderStatusDraft}, nil)

	_, err := svc.ConfirmOrder(ctx, uuid.New(), orderID)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeForbidden, apperror.Code(err))
}

func TestOrderService_RequestRevision(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newOrderFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		BuyerID:       buyerID,
		Status:        models.OrderStatusDelivered,
		MaxRevisions:  2,
		RevisionCount: 1,
	}

	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)

	got, err := svc.RequestRevision(ctx, buyerID, orderID, "поправьте шрифт")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusRevision, got.Status)
	assert.Equal(t, 2, got.RevisionCount)
}

func TestOrderService_RequestRevision_QuotaExhausted(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newOrderFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(&models.Order{
		ID:            orderID,
		BuyerID:       buyerID,
		Status:        models.OrderStatusDelivered,
		MaxRevisions:  2,
		RevisionCount: 2,
	}, nil)

	_, err := svc.RequestRevision(ctx, buyerID, orderID, "ещё раз")
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeQuotaExceeded, apperror.Code(err))
	orders.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_Approve(t *testing.T) {
	svc, orders, _, _, _, _, escrow, notifier := newOrderFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	sellerID := uuid.New()
	serviceID := uuid.New()
	orderID := uuid.New()
	order := &models.Order{
		ID:        orderID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		ServiceID: serviceID,
		Price:     100000,
		Status:    models.OrderStatusDelivered,
	}

	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)
	escrow.On("ReleaseEscrow", ctx, mock.Anything, order).Return(nil)
	orders.On("IncrementCompletionStats", ctx, mock.Anything, sellerID, serviceID).Return(nil)

	got, err := svc.Approve(ctx, buyerID, orderID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Len(t, notifier.calls, 1)
	escrow.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestOrderService_Approve_WrongStatus(t *testing.T) {
	svc, orders, _, _, _, _, escrow, _ := newOrderFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(&models.Order{
		ID:      orderID,
		BuyerID: buyerID,
		Status:  models.OrderStatusInProgress,
	}, nil)

	_, err := svc.Approve(ctx, buyerID, orderID)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeInvalidState, apperror.Code(err))
	escrow.AssertNotCalled(t, "ReleaseEscrow", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_Cancel_PaidByBuyerRefunds(t *testing.T) {
	svc, orders, _, _, _, _, escrow, _ := newOrderFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	order := &models.Order{
		ID:      orderID,
		BuyerID: buyerID,
		Status:  models.OrderStatusPaidEscrow,
		IsPaid:  true,
		Price:   100000,
	}

	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)
	escrow.On("RefundEscrow", ctx, mock.Anything, order, "передумал").Return(nil)

	got, err := svc.Cancel(ctx, buyerID, orderID, "передумал")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	// после возврата заказ больше не считается оплаченным
	assert.False(t, got.IsPaid)
	_, paid := models.PaidOrderStatuses[got.Status]
	assert.Equal(t, paid, got.IsPaid)
	escrow.AssertExpectations(t)
}

func TestOrderService_Cancel_PaidBySellerForbidden(t *testing.T) {
	svc, orders, _, _, _, _, escrow, _ := newOrderFixture()
	ctx := context.Background()

	sellerID := uuid.New()
	orderID := uuid.New()
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: sellerID,
		Status:   models.OrderStatusPaidEscrow,
		IsPaid:   true,
	}, nil)

	_, err := svc.Cancel(ctx, sellerID, orderID, "")
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeForbidden, apperror.Code(err))
	escrow.AssertNotCalled(t, "RefundEscrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_Cancel_DraftWithoutRefund(t *testing.T) {
	svc, orders, _, _, _, _, escrow, _ := newOrderFixture()
	ctx := context.Background()

	sellerID := uuid.New()
	orderID := uuid.New()
	order := &models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: sellerID,
		Status:   models.OrderStatusDraft,
	}

	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)

	got, err := svc.Cancel(ctx, sellerID, orderID, "")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	escrow.AssertNotCalled(t, "RefundEscrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_Deliver_RequiresFiles(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newOrderFixture()

	_, err := svc.Deliver(context.Background(), uuid.New(), uuid.New(), nil)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))
	orders.AssertNotCalled(t, "LockByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_Deliver(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newOrderFixture()
	ctx := context.Background()

	sellerID := uuid.New()
	orderID := uuid.New()
	order := &models.Order{ID: orderID, SellerID: sellerID, Status: models.OrderStatusInProgress}

	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)
	orders.On("AddDelivery", ctx, mock.Anything, mock.Anything).Return(nil).Twice()

	got, err := svc.Deliver(ctx, sellerID, orderID, []DeliveryFile{
		{FileName: "logo.png", FilePath: "/storage/deliveries/x/logo.png"},
		{FileName: "source.svg", FilePath: "/storage/deliveries/x/source.svg"},
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	orders.AssertExpectations(t)
}

func TestOrderService_CancelExpiredPayments(t *testing.T) {
	svc, orders, _, payments, _, _, _, _ := newOrderFixture()
	ctx := context.Background()

	orderID := uuid.New()
	payment := models.Payment{
		ID:         uuid.New(),
		OrderID:    orderID,
		ExternalID: "order-x-1",
		Status:     models.PaymentStatusPending,
	}
	locked := payment
	order := &models.Order{ID: orderID, Status: models.OrderStatusWaitingPayment}

	payments.On("ListExpired", ctx, mock.Anything, 100).Return([]models.Payment{payment}, nil)
	payments.On("LockByExternalID", ctx, mock.Anything, "order-x-1").Return(&locked, nil)
	payments.On("UpdateStatus", ctx, mock.Anything, &locked).Return(nil)
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)

	n, err := svc.CancelExpiredPayments(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.PaymentStatusExpired, locked.Status)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
}
