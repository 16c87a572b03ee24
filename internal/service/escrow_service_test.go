package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

func newEscrowFixture(valid bool) (*EscrowService, *mockOrderRepo, *mockPaymentRepo, *mockLedger, *recordingNotifier) {
	orders := new(mockOrderRepo)
	payments := new(mockPaymentRepo)
	ledger := new(mockLedger)
	notifier := &recordingNotifier{}
	svc := NewEscrowService(&mockTxManager{}, orders, payments, ledger, &mockVerifier{valid: valid}, notifier, 10)
	return svc, orders, payments, ledger, notifier
}

func TestEscrowService_Notification_InvalidSignature(t *testing.T) {
	svc, _, payments, _, _ := newEscrowFixture(false)

	err := svc.HandleGatewayNotification(context.Background(), GatewayNotification{
		ExternalOrderID: "order-x-1",
		Signature:       "подделка",
	})
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeSignatureInvalid, apperror.Code(err))
	// До БД дело дойти не должно
	payments.AssertNotCalled(t, "LockByExternalID", mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_Notification_ReplayIsNoop(t *testing.T) {
	svc, _, payments, _, _ := newEscrowFixture(true)
	ctx := context.Background()

	payments.On("LockByExternalID", ctx, mock.Anything, "order-x-1").Return(&models.Payment{
		ID:         uuid.New(),
		ExternalID: "order-x-1",
		Status:     models.PaymentStatusSettlement,
		Amount:     100000,
	}, nil)

	err := svc.HandleGatewayNotification(ctx, GatewayNotification{
		ExternalOrderID:   "order-x-1",
		TransactionStatus: "settlement",
		GrossAmount:       100000,
	})
	assert.NoError(t, err)
	payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_Notification_AmountMismatch(t *testing.T) {
	svc, _, payments, _, _ := newEscrowFixture(true)
	ctx := context.Background()

	payments.On("LockByExternalID", ctx, mock.Anything, "order-x-1").Return(&models.Payment{
		ID:         uuid.New(),
		ExternalID: "order-x-1",
		Status:     models.PaymentStatusPending,
		Amount:     100000,
	}, nil)

	err := svc.HandleGatewayNotification(ctx, GatewayNotification{
		ExternalOrderID:   "order-x-1",
		TransactionStatus: "settlement",
		GrossAmount:       99999,
	})
	assert.Error(t, err)
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))
}

func TestEscrowService_Notification_Settlement(t *testing.T) {
	svc, orders, payments, ledger, notifier := newEscrowFixture(true)
	ctx := context.Background()

	orderID := uuid.New()
	sellerID := uuid.New()
	buyerID := uuid.New()
	walletID := uuid.New()

	payment := &models.Payment{
		ID:         uuid.New(),
		OrderID:    orderID,
		ExternalID: "order-x-1",
		Status:     models.PaymentStatusPending,
		Amount:     100000,
	}
	order := &models.Order{
		ID:           orderID,
		BuyerID:      buyerID,
		SellerID:     sellerID,
		Title:        "Логотип",
		Price:        100000,
		DeliveryDays: 3,
		Status:       models.OrderStatusWaitingPayment,
	}

	payments.On("LockByExternalID", ctx, mock.Anything, "order-x-1").Return(payment, nil)
	payments.On("UpdateStatus", ctx, mock.Anything, payment).Return(nil)
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)
	ledger.On("EnsureWallet", ctx, mock.Anything, sellerID).Return(&models.Wallet{ID: walletID, UserID: sellerID}, nil)
	ledger.On("ApplyEntry", ctx, mock.Anything, walletID, models.EntryTypeEscrowHold, int64(-100000), &orderID, (*uuid.UUID)(nil), mock.Anything).Return(&models.WalletEntry{}, nil)

	err := svc.HandleGatewayNotification(ctx, GatewayNotification{
		ExternalOrderID:   "order-x-1",
		TransactionID:     "tx-123",
		TransactionStatus: "settlement",
		GrossAmount:       100000,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSettlement, payment.Status)
	assert.Equal(t, int64(100000), payment.PaidAmount)
	assert.Equal(t, models.OrderStatusPaidEscrow, order.Status)
	assert.True(t, order.IsPaid)
	assert.NotNil(t, order.DueDate)
	assert.Len(t, notifier.calls, 2)
	ledger.AssertExpectations(t)
}

func TestEscrowService_Notification_FraudForcesFailure(t *testing.T) {
	svc, orders, payments, _, _ := newEscrowFixture(true)
	ctx := context.Background()

	orderID := uuid.New()
	payment := &models.Payment{
		ID:         uuid.New(),
		OrderID:    orderID,
		ExternalID: "order-x-1",
		Status:     models.PaymentStatusPending,
		Amount:     100000,
	}
	order := &models.Order{
		ID:     orderID,
		Status: models.OrderStatusWaitingPayment,
	}

	payments.On("LockByExternalID", ctx, mock.Anything, "order-x-1").Return(payment, nil)
	payments.On("UpdateStatus", ctx, mock.Anything, payment).Return(nil)
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)

	err := svc.HandleGatewayNotification(ctx, GatewayNotification{
		ExternalOrderID:   "order-x-1",
		TransactionStatus: "capture",
		FraudStatus:       "deny",
		GrossAmount:       100000,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
}

func TestEscrowService_Notification_ExpiredCancelsOrder(t *testing.T) {
	svc, orders, payments, ledger, _ := newEscrowFixture(true)
	ctx := context.Background()

	orderID := uuid.New()
	payment := &models.Payment{
		ID:         uuid.New(),
		OrderID:    orderID,
		ExternalID: "order-x-1",
		Status:     models.PaymentStatusPending,
		Amount:     100000,
	}
	order := &models.Order{
		ID:     orderID,
		Status: models.OrderStatusWaitingPayment,
	}

	payments.On("LockByExternalID", ctx, mock.Anything, "order-x-1").Return(payment, nil)
	payments.On("UpdateStatus", ctx, mock.Anything, payment).Return(nil)
	orders.On("LockByID", ctx, mock.Anything, orderID).Return(order, nil)
	orders.On("Update", ctx, mock.Anything, order).Return(nil)

	err := svc.HandleGatewayNotification(ctx, GatewayNotification{
		ExternalOrderID:   "order-x-1",
		TransactionStatus: "expire",
		GrossAmount:       100000,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.NotNil(t, order.CancelledAt)
	ledger.AssertNotCalled(t, "ApplyEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_ReleaseEscrow_FeeMath(t *testing.T) {
	svc, _, _, ledger, _ := newEscrowFixture(true)
	ctx := context.Background()

	orderID := uuid.New()
	sellerID := uuid.New()
	walletID := uuid.New()
	order := &models.Order{ID: orderID, SellerID: sellerID, Title: "Логотип", Price: 100000}

	ledger.On("EnsureWallet", ctx, mock.Anything, sellerID).Return(&models.Wallet{ID: walletID}, nil)
	// 10% комиссии: 90 000 продавцу, 10 000 платформе, в сумме ровно цена
	ledger.On("ApplyEntry", ctx, mock.Anything, walletID, models.EntryTypeEscrowRelease, int64(90000), &orderID, (*uuid.UUID)(nil), mock.Anything).Return(&models.WalletEntry{}, nil)
	ledger.On("ApplyEntry", ctx, mock.Anything, walletID, models.EntryTypePlatformFee, int64(-10000), &orderID, (*uuid.UUID)(nil), mock.Anything).Return(&models.WalletEntry{}, nil)

	err := svc.ReleaseEscrow(ctx, nil, order)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestEscrowService_ReleaseEscrow_RepeatIsNoop(t *testing.T) {
	svc, _, _, ledger, _ := newEscrowFixture(true)
	ctx := context.Background()

	orderID := uuid.New()
	sellerID := uuid.New()
	walletID := uuid.New()
	order := &models.Order{ID: orderID, SellerID: sellerID, Price: 100000}

	ledger.On("EnsureWallet", ctx, mock.Anything, sellerID).Return(&models.Wallet{ID: walletID}, nil)
	ledger.On("ApplyEntry", ctx, mock.Anything, walletID, models.EntryTypeEscrowRelease, int64(90000), &orderID, (*uuid.UUID)(nil), mock.Anything).
		Return(nil, apperror.New(apperror.ErrCodeConflict, "запись журнала уже существует"))

	err := svc.ReleaseEscrow(ctx, nil, order)
	assert.NoError(t, err)
	ledger.AssertNotCalled(t, "ApplyEntry", mock.Anything, mock.Anything, mock.Anything, models.EntryTypePlatformFee, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_RefundEscrow(t *testing.T) {
	svc, _, _, ledger, _ := newEscrowFixture(true)
	ctx := context.Background()

	orderID := uuid.New()
	sellerID := uuid.New()
	walletID := uuid.New()
	order := &models.Order{ID: orderID, SellerID: sellerID, Title: "Логотип", Price: 100000}

	ledger.On("EnsureWallet", ctx, mock.Anything, sellerID).Return(&models.Wallet{ID: walletID}, nil)
	ledger.On("ApplyEntry", ctx, mock.Anything, walletID, models.EntryTypeRefund, int64(100000), &orderID, (*uuid.UUID)(nil), mock.Anything).Return(&models.WalletEntry{}, nil)

	err := svc.RefundEscrow(ctx, nil, order, "отмена покупателем")
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}
