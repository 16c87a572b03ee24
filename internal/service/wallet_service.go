package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// TxManager выполняет функцию в рамках одной транзакции БД. Все финансовые
// мутации проходят через него: запись в журнал, изменение баланса и смена
// статуса заказа/заявки фиксируются или откатываются вместе.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	DB() *sqlx.DB
}

// WalletRepository описывает взаимодействие сервиса с хранилищем кошельков.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	LockByUserID(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (*models.Wallet, error)
	LockByID(ctx context.Context, q sqlx.ExtContext, walletID uuid.UUID) (*models.Wallet, error)
	HasEntry(ctx context.Context, q sqlx.ExtContext, entryType string, orderID, withdrawalID *uuid.UUID) (bool, error)
	InsertEntry(ctx context.Context, q sqlx.ExtContext, entry *models.WalletEntry) error
	AdjustBalance(ctx context.Context, q sqlx.ExtContext, walletID uuid.UUID, delta int64) error
	ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletEntry, error)
	SumEntries(ctx context.Context, walletID uuid.UUID, types []string, from, to *time.Time) (int64, error)
	PendingEscrow(ctx context.Context, walletID uuid.UUID) (int64, error)
}

// WalletService содержит логику журнала кошелька. Журнал append-only: записи
// не редактируются и не удаляются, баланс меняется только вместе со вставкой
// записи одного из балансовых типов.
type WalletService struct {
	store   TxManager
	wallets WalletRepository
	log     *logrus.Entry
}

// NewWalletService создаёт сервис кошельков.
func NewWalletService(store TxManager, wallets WalletRepository) *WalletService {
	return &WalletService{
		store:   store,
		wallets: wallets,
		log:     logger.WithComponent("wallet_service"),
	}
}

// GetOrCreateWallet возвращает кошелёк пользователя, создавая его при первом
// обращении.
func (s *WalletService) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.wallets.GetOrCreate(ctx, s.store.DB(), userID)
	if err != nil {
		return nil, fmt.Errorf("wallet service: get or create %w", err)
	}
	return wallet, nil
}

// EnsureWallet возвращает кошелёк пользователя внутри транзакции, создавая
// его при необходимости.
func (s *WalletService) EnsureWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.wallets.GetOrCreate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet service: ensure wallet %w", err)
	}
	return wallet, nil
}

// ApplyEntry вставляет запись журнала внутри переданной транзакции. Записи
// со ссылкой на заказ или заявку защищены от дублей: повторная вставка того
// же типа по той же ссылке возвращает CONFLICT и ничего не меняет. Баланс
// корректируется только для балансовых типов записей; escrow-записи
// (hold/refund/fee) фиксируют обязательства по заказу и баланс не трогают.
func (s *WalletService) ApplyEntry(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, entryType string, amount int64, orderID, withdrawalID *uuid.UUID, description string) (*models.WalletEntry, error) {
	if orderID != nil || withdrawalID != nil {
		exists, err := s.wallets.HasEntry(ctx, tx, entryType, orderID, withdrawalID)
		if err != nil {
			return nil, fmt.Errorf("wallet service: проверка дубля %w", err)
		}
		if exists {
			return nil, apperror.New(apperror.ErrCodeConflict, "запись журнала уже существует")
		}
	}

	entry := &models.WalletEntry{
		WalletID:     walletID,
		Type:         entryType,
		Amount:       amount,
		OrderID:      orderID,
		WithdrawalID: withdrawalID,
		Description:  description,
	}
	if err := s.wallets.InsertEntry(ctx, tx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// Гонка двух транзакций: уникальный индекс сработал после
			// проверки HasEntry.
			return nil, apperror.New(apperror.ErrCodeConflict, "запись журнала уже существует")
		}
		return nil, fmt.Errorf("wallet service: вставка записи %w", err)
	}

	if _, ok := models.BalanceEntryTypes[entryType]; ok {
		if err := s.wallets.AdjustBalance(ctx, tx, walletID, amount); err != nil {
			return nil, fmt.Errorf("wallet service: изменение баланса %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"type":      entryType,
		"amount":    amount,
	}).Debug("запись журнала кошелька")

	return entry, nil
}

// GetWallet возвращает кошелёк пользователя.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, apperror.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet service: get wallet %w", err)
	}
	return wallet, nil
}

// Entries возвращает страницу журнала кошелька пользователя.
func (s *WalletService) Entries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.wallets.ListEntries(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet service: list entries %w", err)
	}
	return entries, nil
}

// Summary считает сводку кошелька из журнала. Заработок за период и всего —
// сумма записей ESCROW_RELEASE; выведено — модуль суммы записей WITHDRAWAL
// без учёта возвратов.
func (s *WalletService) Summary(ctx context.Context, userID uuid.UUID, periodFrom *time.Time) (*models.WalletSummary, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending, err := s.wallets.PendingEscrow(ctx, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("wallet service: pending escrow %w", err)
	}

	totalEarnings, err := s.wallets.SumEntries(ctx, wallet.ID, []string{models.EntryTypeEscrowRelease}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet service: total earnings %w", err)
	}

	periodEarnings := totalEarnings
	if periodFrom != nil {
		periodEarnings, err = s.wallets.SumEntries(ctx, wallet.ID, []string{models.EntryTypeEscrowRelease}, periodFrom, nil)
		if err != nil {
			return nil, fmt.Errorf("wallet service: period earnings %w", err)
		}
	}

	withdrawn, err := s.wallets.SumEntries(ctx, wallet.ID,
		[]string{models.EntryTypeWithdrawal, models.EntryTypeWithdrawalReversal}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet service: total withdrawn %w", err)
	}

	return &models.WalletSummary{
		Balance:        wallet.Balance,
		PendingEscrow:  pending,
		PeriodEarnings: periodEarnings,
		TotalEarnings:  totalEarnings,
		TotalWithdrawn: -withdrawn,
	}, nil
}
