package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// WithdrawalRepository описывает взаимодействие с хранилищем заявок на вывод.
type WithdrawalRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, w *models.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Withdrawal, error)
	CountPendingForUser(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (int, error)
	UpdateStatus(ctx context.Context, q sqlx.ExtContext, w *models.Withdrawal) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Withdrawal, error)
}

// WithdrawalConfig параметры комиссий и ограничений вывода средств.
type WithdrawalConfig struct {
	FixedFee   int64
	FeePercent int64
	MinBalance int64
	MaxPending int
}

// CreateWithdrawalInput параметры создания заявки на вывод.
type CreateWithdrawalInput struct {
	Amount        int64  `json:"amount"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

// WithdrawalService содержит логику заявок на вывод средств. Полная сумма
// заявки удерживается с баланса при создании; любой терминальный откат
// (отклонение, сбой, отмена) возвращает её одной и той же зеркальной записью.
type WithdrawalService struct {
	store       TxManager
	withdrawals WithdrawalRepository
	wallets     WalletRepository
	ledger      WalletLedger
	notifier    Notifier
	cfg         WithdrawalConfig
	log         *logrus.Entry
}

// NewWithdrawalService создаёт сервис вывода средств.
func NewWithdrawalService(store TxManager, withdrawals WithdrawalRepository, wallets WalletRepository, ledger WalletLedger, notifier Notifier, cfg WithdrawalConfig) *WithdrawalService {
	return &WithdrawalService{
		store:       store,
		withdrawals: withdrawals,
		wallets:     wallets,
		ledger:      ledger,
		notifier:    notifier,
		cfg:         cfg,
		log:         logger.WithComponent("withdrawal_service"),
	}
}

// Fee считает комиссию вывода: фиксированная часть плюс процент от суммы,
// целочисленно с округлением вниз.
func (s *WithdrawalService) Fee(amount int64) int64 {
	return s.cfg.FixedFee + amount*s.cfg.FeePercent/100
}

// Create создаёт заявку на вывод и удерживает полную сумму с баланса в той же
// транзакции. Заявка отклоняется при недостатке средств или превышении лимита
// активных заявок.
func (s *WithdrawalService) Create(ctx context.Context, userID uuid.UUID, input CreateWithdrawalInput) (*models.Withdrawal, error) {
	if input.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма вывода должна быть положительной")
	}
	if strings.TrimSpace(input.BankName) == "" || strings.TrimSpace(input.AccountNumber) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "укажите банковские реквизиты")
	}

	fee := s.Fee(input.Amount)
	net := input.Amount - fee
	if net <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("сумма вывода не покрывает комиссию %d", fee))
	}

	var withdrawal *models.Withdrawal
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.wallets.LockByUserID(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrWalletNotFound) {
				return apperror.ErrWalletNotFound
			}
			return err
		}

		pending, err := s.withdrawals.CountPendingForUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if pending >= s.cfg.MaxPending {
			return apperror.New(apperror.ErrCodeQuotaExceeded,
				fmt.Sprintf("превышен лимит активных заявок (%d)", s.cfg.MaxPending))
		}

		if wallet.Balance-input.Amount < s.cfg.MinBalance {
			return apperror.New(apperror.ErrCodeValidation, "недостаточно средств на балансе")
		}

		w := &models.Withdrawal{
			UserID:        userID,
			WalletID:      wallet.ID,
			Amount:        input.Amount,
			Fee:           fee,
			NetAmount:     net,
			BankName:      input.BankName,
			AccountNumber: input.AccountNumber,
			AccountHolder: input.AccountHolder,
			Status:        models.WithdrawalStatusPending,
		}
		if err := s.withdrawals.Create(ctx, tx, w); err != nil {
			return err
		}

		_, err = s.ledger.ApplyEntry(ctx, tx, wallet.ID, models.EntryTypeWithdrawal, -w.Amount,
			nil, &w.ID, fmt.Sprintf("Вывод средств на %s", w.BankName))
		if err != nil {
			return err
		}
		withdrawal = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"withdrawal_id": withdrawal.ID,
		"user_id":       userID,
		"amount":        withdrawal.Amount,
	}).Info("создана заявка на вывод")
	return withdrawal, nil
}

// Approve одобряет заявку: pending → processing. Только атрибуция —
// авторизация администратора выполняется внешним слоем.
func (s *WithdrawalService) Approve(ctx context.Context, adminID, withdrawalID uuid.UUID, notes *string) (*models.Withdrawal, error) {
	return s.transition(ctx, withdrawalID, models.WithdrawalStatusPending, models.WithdrawalStatusProcessing, adminID, notes, false)
}

// Reject отклоняет заявку: pending → cancelled, удержанная сумма возвращается.
// Причина обязательна.
func (s *WithdrawalService) Reject(ctx context.Context, adminID, withdrawalID uuid.UUID, notes *string) (*models.Withdrawal, error) {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "требуется причина отклонения заявки")
	}
	w, err := s.transition(ctx, withdrawalID, models.WithdrawalStatusPending, models.WithdrawalStatusCancelled, adminID, notes, true)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(w.UserID, "withdrawal_rejected", w, nil)
	return w, nil
}

// Complete подтверждает выполненный банковский перевод: processing → completed.
// Баланс не меняется, сумма уже удержана при создании заявки.
func (s *WithdrawalService) Complete(ctx context.Context, adminID, withdrawalID uuid.UUID, notes *string) (*models.Withdrawal, error) {
	w, err := s.transition(ctx, withdrawalID, models.WithdrawalStatusProcessing, models.WithdrawalStatusCompleted, adminID, notes, false)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(w.UserID, "withdrawal_completed", w, nil)
	return w, nil
}

// Fail фиксирует сбой банковского перевода: processing → failed, удержанная
// сумма возвращается. Причина обязательна.
func (s *WithdrawalService) Fail(ctx context.Context, adminID, withdrawalID uuid.UUID, notes *string) (*models.Withdrawal, error) {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "требуется причина сбоя перевода")
	}
	w, err := s.transition(ctx, withdrawalID, models.WithdrawalStatusProcessing, models.WithdrawalStatusFailed, adminID, notes, true)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(w.UserID, "withdrawal_failed", w, nil)
	return w, nil
}

// Cancel отменяет собственную заявку, пока она не взята в обработку.
func (s *WithdrawalService) Cancel(ctx context.Context, userID, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	var withdrawal *models.Withdrawal
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		w, err := s.lockWithdrawal(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}
		if w.UserID != userID {
			return apperror.ErrForbidden
		}
		if w.Status != models.WithdrawalStatusPending {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("заявку в статусе %s нельзя отменить", w.Status))
		}

		now := time.Now()
		w.Status = models.WithdrawalStatusCancelled
		w.ProcessedAt = &now
		if err := s.withdrawals.UpdateStatus(ctx, tx, w); err != nil {
			return err
		}
		if err := s.reverse(ctx, tx, w); err != nil {
			return err
		}
		withdrawal = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// GetByID возвращает заявку. Доступно владельцу; админская выборка идёт
// через ListByStatus.
func (s *WithdrawalService) GetByID(ctx context.Context, userID, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	w, err := s.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawalNotFound) {
			return nil, apperror.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("withdrawal service: получение заявки %w", err)
	}
	if w.UserID != userID {
		return nil, apperror.ErrForbidden
	}
	return w, nil
}

// ListMy возвращает заявки пользователя.
func (s *WithdrawalService) ListMy(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.withdrawals.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("withdrawal service: список заявок %w", err)
	}
	return items, nil
}

// ListByStatus возвращает админскую очередь заявок в заданном статусе.
func (s *WithdrawalService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.withdrawals.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("withdrawal service: очередь заявок %w", err)
	}
	return items, nil
}

// transition выполняет административный переход статуса заявки; при
// reverseFunds удержанная сумма возвращается на баланс в той же транзакции.
func (s *WithdrawalService) transition(ctx context.Context, withdrawalID uuid.UUID, from, to string, adminID uuid.UUID, notes *string, reverseFunds bool) (*models.Withdrawal, error) {
	var withdrawal *models.Withdrawal
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		w, err := s.lockWithdrawal(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}
		if w.Status != from {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("ожидался статус %s, текущий %s", from, w.Status))
		}

		now := time.Now()
		w.Status = to
		w.AdminNotes = notes
		w.ProcessedBy = &adminID
		w.ProcessedAt = &now
		if err := s.withdrawals.UpdateStatus(ctx, tx, w); err != nil {
			return err
		}
		if reverseFunds {
			if err := s.reverse(ctx, tx, w); err != nil {
				return err
			}
		}
		withdrawal = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"withdrawal_id": withdrawalID,
		"from":          from,
		"to":            to,
	}).Info("переход статуса заявки на вывод")
	return withdrawal, nil
}

// reverse возвращает удержанную сумму зеркальной записью журнала. Общая для
// всех терминальных откатов и идемпотентная: дубль записи — no-op.
func (s *WithdrawalService) reverse(ctx context.Context, tx *sqlx.Tx, w *models.Withdrawal) error {
	_, err := s.ledger.ApplyEntry(ctx, tx, w.WalletID, models.EntryTypeWithdrawalReversal, w.Amount,
		nil, &w.ID, fmt.Sprintf("Возврат по заявке на вывод %s", w.ID))
	if err != nil && !apperror.IsConflict(err) {
		return err
	}
	return nil
}

func (s *WithdrawalService) lockWithdrawal(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	w, err := s.withdrawals.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawalNotFound) {
			return nil, apperror.ErrWithdrawalNotFound
		}
		return nil, err
	}
	return w, nil
}
