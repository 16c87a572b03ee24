package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

func newDisputeFixture() (*DisputeService, *mockDisputeRepo, *mockOrderRepo, *mockEscrowCoordinator, *recordingNotifier) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	escrow := new(mockEscrowCoordinator)
	notifier := &recordingNotifier{}
	svc := NewDisputeService(&mockTxManager{}, disputes, orders, escrow, notifier)
	return svc, disputes, orders, escrow, notifier
}

func TestDisputeService_Open(t *testing.T) {
	svc, disputes, orders, _, notifier := newDisputeFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	sellerID := uuid.New()
	orderID := uuid.New()
	order := &models.Order{ID: orderID, BuyerID: buyerID, SellerID: sellerID, Status: models.OrderStatusInProgress}

	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	disputes.On("GetOpenByOrderID", ctx, mock.Anything, orderID).Return(nil, repository.ErrDisputeNotFound)
	disputes.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)

	d, err := svc.Open(ctx, buyerID, orderID, "работа не соответствует требованиям")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, d.Status)
	assert.Equal(t, buyerID, d.OpenedBy)
	assert.Equal(t, models.OrderStatusDisputed, order.Status)
	assert.Len(t, notifier.calls, 1)
	assert.Equal(t, sellerID, notifier.calls[0].UserID)
}

func TestDisputeService_Open_EmptyReason(t *testing.T) {
	svc, _, orders, _, _ := newDisputeFixture()

	_, err := svc.Open(context.Background(), uuid.New(), uuid.New(), "   ")
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))
	orders.AssertNotCalled(t, "LockByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestDisputeService_Open_AlreadyOpen(t *testing.T) {
	svc, disputes, orders, _, _ := newDisputeFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(&models.Order{
		ID:      orderID,
		BuyerID: buyerID,
		Status:  models.OrderStatusDelivered,
	}, nil)
	disputes.On("GetOpenByOrderID", ctx, mock.Anything, orderID).Return(&models.Dispute{ID: uuid.New()}, nil)

	_, err := svc.Open(ctx, buyerID, orderID, "проблема")
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeConflict, apperror.Code(err))
	disputes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestDisputeService_Open_WrongStatus(t *testing.T) {
	svc, _, orders, _, _ := newDisputeFixture()
	ctx := context.Background()

	buyerID := uuid.New()
	orderID := uuid.New()
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(&models.Order{
		ID:      orderID,
		BuyerID: buyerID,
		Status:  models.OrderStatusDraft,
	}, nil)

	_, err := svc.Open(ctx, buyerID, orderID, "проблема")
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeInvalidState, apperror.Code(err))
}

func TestDisputeService_Open_NotParty(t *testing.T) {
	svc, _, orders, _, _ := newDisputeFixture()
	ctx := context.Background()

	orderID := uuid.New()
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(&models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusInProgress,
	}, nil)

	_, err := svc.Open(ctx, uuid.New(), orderID, "проблема")
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeForbidden, apperror.Code(err))
}

func TestDisputeService_Resolve_ReleaseToSeller(t *testing.T) {
	svc, disputes, orders, escrow, notifier := newDisputeFixture()
	ctx := context.Background()

	adminID := uuid.New()
	disputeID := uuid.New()
	orderID := uuid.New()
	sellerID := uuid.New()
	serviceID := uuid.New()

	d := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusOpen}
	order := &models.Order{
		ID:        orderID,
		BuyerID:   uuid.New(),
		SellerID:  sellerID,
		ServiceID: serviceID,
		Price:     100000,
		Status:    models.OrderStatusDisputed,
	}

	disputes.On("LockByID", ctx, mock.Anything, disputeID).Return(d, nil)
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)
	escrow.On("ReleaseEscrow", ctx, mock.Anything, order).Return(nil)
	orders.On("IncrementCompletionStats", ctx, mock.Anything, sellerID, serviceID).Return(nil)
	disputes.On("UpdateResolved", ctx, mock.Anything, d).Return(nil)

	got, err := svc.Resolve(ctx, adminID, disputeID, models.ResolutionReleaseToSeller, nil)
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, got.Status)
	assert.Equal(t, models.ResolutionReleaseToSeller, *got.Resolution)
	assert.Equal(t, &adminID, got.ResolvedBy)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Len(t, notifier.calls, 2)
	escrow.AssertExpectations(t)
}

func TestDisputeService_Resolve_RefundToBuyer(t *testing.T) {
	svc, disputes, orders, escrow, _ := newDisputeFixture()
	ctx := context.Background()

	disputeID := uuid.New()
	orderID := uuid.New()

	d := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusOpen}
	order := &models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Price:    100000,
		Status:   models.OrderStatusDisputed,
		IsPaid:   true,
	}

	disputes.On("LockByID", ctx, mock.Anything, disputeID).Return(d, nil)
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)
	escrow.On("RefundEscrow", ctx, mock.Anything, order, "решение по спору").Return(nil)
	disputes.On("UpdateResolved", ctx, mock.Anything, d).Return(nil)

	got, err := svc.Resolve(ctx, uuid.New(), disputeID, models.ResolutionRefundToBuyer, nil)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.NotNil(t, order.CancelledAt)
	assert.False(t, order.IsPaid)
	assert.Equal(t, models.DisputeStatusResolved, got.Status)
	escrow.AssertExpectations(t)
	orders.AssertNotCalled(t, "IncrementCompletionStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDisputeService_Resolve_UnknownResolution(t *testing.T) {
	svc, disputes, _, _, _ := newDisputeFixture()

	_, err := svc.Resolve(context.Background(), uuid.New(), uuid.New(), "split_the_difference", nil)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))
	disputes.AssertNotCalled(t, "LockByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestDisputeService_Resolve_AlreadyResolved(t *testing.T) {
	svc, disputes, _, escrow, _ := newDisputeFixture()
	ctx := context.Background()

	disputeID := uuid.New()
	disputes.On("LockByID", ctx, mock.Anything, disputeID).Return(&models.Dispute{
		ID:     disputeID,
		Status: models.DisputeStatusResolved,
	}, nil)

	_, err := svc.Resolve(ctx, uuid.New(), disputeID, models.ResolutionReleaseToSeller, nil)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeInvalidState, apperror.Code(err))
	escrow.AssertNotCalled(t, "ReleaseEscrow", mock.Anything, mock.Anything, mock.Anything)
}

func TestDisputeService_GetByID_PartyAccess(t *testing.T) {
	svc, disputes, orders, _, _ := newDisputeFixture()
	ctx := context.Background()

	disputeID := uuid.New()
	orderID := uuid.New()
	buyerID := uuid.New()

	disputes.On("GetByID", ctx, disputeID).Return(&models.Dispute{ID: disputeID, OrderID: orderID}, nil)
	orders.On("GetByID", ctx, orderID).Return(&models.Order{ID: orderID, BuyerID: buyerID, SellerID: uuid.New()}, nil)

	_, err := svc.GetByID(ctx, buyerID, disputeID)
	assert.NoError(t, err)

	_, err = svc.GetByID(ctx, uuid.New(), disputeID)
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeForbidden, apperror.Code(err))
}
