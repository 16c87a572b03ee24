package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrWithdrawalNotFound = errors.New("withdrawal not found")

type WithdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create вставляет заявку на вывод в статусе pending.
func (r *WithdrawalRepository) Create(ctx context.Context, q sqlx.ExtContext, w *models.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (user_id, wallet_id, amount, fee, net_amount,
			bank_name, account_number, account_holder, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	row := q.QueryRowxContext(ctx, query,
		w.UserID, w.WalletID, w.Amount, w.Fee, w.NetAmount,
		w.BankName, w.AccountNumber, w.AccountHolder, w.Status)
	if err := row.Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("withdrawal repository: create %w", err)
	}
	return nil
}

// GetByID возвращает заявку по идентификатору.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return common.GetByID[models.Withdrawal](ctx, r.db, "withdrawals", id, ErrWithdrawalNotFound)
}

// LockByID берёт заявку под FOR UPDATE для смены статуса.
func (r *WithdrawalRepository) LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := sqlx.GetContext(ctx, q, &w, `SELECT * FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

// CountPendingForUser считает активные заявки пользователя (pending и processing).
func (r *WithdrawalRepository) CountPendingForUser(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, `
		SELECT COUNT(*) FROM withdrawals
		WHERE user_id = $1 AND status IN ($2, $3)
	`, userID, models.WithdrawalStatusPending, models.WithdrawalStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("withdrawal repository: count pending %w", err)
	}
	return count, nil
}

// UpdateStatus сохраняет новый статус заявки и отметку администратора.
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, q sqlx.ExtContext, w *models.Withdrawal) error {
	query := `
		UPDATE withdrawals SET status = $2, admin_notes = $3,
			processed_by = $4, processed_at = $5, updated_at = NOW()
		WHERE id = $1
	`
	res, err := q.ExecContext(ctx, query, w.ID, w.Status, w.AdminNotes, w.ProcessedBy, w.ProcessedAt)
	if err != nil {
		return fmt.Errorf("withdrawal repository: update status %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

// ListByUser возвращает заявки пользователя, новые первыми.
func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	items := []models.Withdrawal{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("withdrawal repository: list by user %w", err)
	}
	return items, nil
}

// ListByStatus возвращает заявки в заданном статусе для админской очереди.
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Withdrawal, error) {
	items := []models.Withdrawal{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM withdrawals
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("withdrawal repository: list by status %w", err)
	}
	return items, nil
}
