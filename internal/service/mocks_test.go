package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// mockTxManager выполняет функцию транзакции напрямую: репозитории в тестах
// замоканы и реальная транзакция не нужна.
type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (m *mockTxManager) DB() *sqlx.DB { return nil }

// recordingNotifier собирает отправленные уведомления вместо рассылки.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []recordedNotification
}

type recordedNotification struct {
	UserID uuid.UUID
	Type   string
}

func (n *recordingNotifier) Notify(userID uuid.UUID, notifType string, payload any, link *string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recordedNotification{UserID: userID, Type: notifType})
}

type mockWalletRepo struct {
	mock.Mock
}

func (m *mockWalletRepo) GetOrCreate(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, q, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletRepo) LockByUserID(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, q, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletRepo) LockByID(ctx context.Context, q sqlx.ExtContext, walletID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, q, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletRepo) HasEntry(ctx context.Context, q sqlx.ExtContext, entryType string, orderID, withdrawalID *uuid.UUID) (bool, error) {
	args := m.Called(ctx, q, entryType, orderID, withdrawalID)
	return args.Bool(0), args.Error(1)
}

func (m *mockWalletRepo) InsertEntry(ctx context.Context, q sqlx.ExtContext, entry *models.WalletEntry) error {
	args := m.Called(ctx, q, entry)
	return args.Error(0)
}

func (m *mockWalletRepo) AdjustBalance(ctx context.Context, q sqlx.ExtContext, walletID uuid.UUID, delta int64) error {
	args := m.Called(ctx, q, walletID, delta)
	return args.Error(0)
}

func (m *mockWalletRepo) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletEntry, error) {
	args := m.Called(ctx, walletID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WalletEntry), args.Error(1)
}

func (m *mockWalletRepo) SumEntries(ctx context.Context, walletID uuid.UUID, types []string, from, to *time.Time) (int64, error) {
	args := m.Called(ctx, walletID, types, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockWalletRepo) PendingEscrow(ctx context.Context, walletID uuid.UUID) (int64, error) {
	args := m.Called(ctx, walletID)
	return args.Get(0).(int64), args.Error(1)
}

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, q sqlx.ExtContext, order *models.Order) error {
	args := m.Called(ctx, q, order)
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) Update(ctx context.Context, q sqlx.ExtContext, order *models.Order) error {
	args := m.Called(ctx, q, order)
	return args.Error(0)
}

func (m *mockOrderRepo) AddAttachment(ctx context.Context, q sqlx.ExtContext, a *models.OrderAttachment) error {
	args := m.Called(ctx, q, a)
	return args.Error(0)
}

func (m *mockOrderRepo) AddDelivery(ctx context.Context, q sqlx.ExtContext, d *models.OrderDelivery) error {
	args := m.Called(ctx, q, d)
	return args.Error(0)
}

func (m *mockOrderRepo) ListDeliveries(ctx context.Context, orderID uuid.UUID) ([]models.OrderDelivery, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderDelivery), args.Error(1)
}

func (m *mockOrderRepo) ListAttachments(ctx context.Context, orderID uuid.UUID) ([]models.OrderAttachment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderAttachment), args.Error(1)
}

func (m *mockOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, []models.Order, error) {
	args := m.Called(ctx, userID)
	var asBuyer, asSeller []models.Order
	if args.Get(0) != nil {
		asBuyer = args.Get(0).([]models.Order)
	}
	if args.Get(1) != nil {
		asSeller = args.Get(1).([]models.Order)
	}
	return asBuyer, asSeller, args.Error(2)
}

func (m *mockOrderRepo) IncrementCompletionStats(ctx context.Context, q sqlx.ExtContext, sellerID, serviceID uuid.UUID) error {
	args := m.Called(ctx, q, sellerID, serviceID)
	return args.Error(0)
}

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) Create(ctx context.Context, q sqlx.ExtContext, p *models.Payment) error {
	args := m.Called(ctx, q, p)
	return args.Error(0)
}

func (m *mockPaymentRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentRepo) LockByExternalID(ctx context.Context, q sqlx.ExtContext, externalID string) (*models.Payment, error) {
	args := m.Called(ctx, q, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentRepo) UpdateStatus(ctx context.Context, q sqlx.ExtContext, p *models.Payment) error {
	args := m.Called(ctx, q, p)
	return args.Error(0)
}

func (m *mockPaymentRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Payment, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Payment), args.Error(1)
}

type mockWithdrawalRepo struct {
	mock.Mock
}

func (m *mockWithdrawalRepo) Create(ctx context.Context, q sqlx.ExtContext, w *models.Withdrawal) error {
	args := m.Called(ctx, q, w)
	return args.Error(0)
}

func (m *mockWithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Withdrawal, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) CountPendingForUser(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, q, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockWithdrawalRepo) UpdateStatus(ctx context.Context, q sqlx.ExtContext, w *models.Withdrawal) error {
	args := m.Called(ctx, q, w)
	return args.Error(0)
}

func (m *mockWithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Withdrawal, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Withdrawal), args.Error(1)
}

type mockDisputeRepo struct {
	mock.Mock
}

func (m *mockDisputeRepo) Create(ctx context.Context, q sqlx.ExtContext, d *models.Dispute) error {
	args := m.Called(ctx, q, d)
	return args.Error(0)
}

func (m *mockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) GetOpenByOrderID(ctx context.Context, q sqlx.ExtContext, orderID uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, q, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) UpdateResolved(ctx context.Context, q sqlx.ExtContext, d *models.Dispute) error {
	args := m.Called(ctx, q, d)
	return args.Error(0)
}

func (m *mockDisputeRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Dispute), args.Error(1)
}

type mockCatalogRepo struct {
	mock.Mock
}

func (m *mockCatalogRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

type mockUserReader struct {
	mock.Mock
}

func (m *mockUserReader) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateSession(ctx context.Context, orderID uuid.UUID, amount int64, buyerEmail string, items []gateway.SessionItem) (*gateway.Session, error) {
	args := m.Called(ctx, orderID, amount, buyerEmail, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Session), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) EnsureWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockLedger) ApplyEntry(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, entryType string, amount int64, orderID, withdrawalID *uuid.UUID, description string) (*models.WalletEntry, error) {
	args := m.Called(ctx, tx, walletID, entryType, amount, orderID, withdrawalID, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletEntry), args.Error(1)
}

type mockEscrowCoordinator struct {
	mock.Mock
}

func (m *mockEscrowCoordinator) ReleaseEscrow(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *mockEscrowCoordinator) RefundEscrow(ctx context.Context, tx *sqlx.Tx, order *models.Order, reason string) error {
	args := m.Called(ctx, tx, order, reason)
	return args.Error(0)
}

type mockVerifier struct {
	valid bool
}

func (m *mockVerifier) VerifyNotification(externalOrderID, statusCode string, grossAmount int64, signature string) bool {
	return m.valid
}
