package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrDuplicateEntry = errors.New("duplicate wallet entry")
)

// WalletRepository работает с кошельками и журналом записей. Методы,
// участвующие в денежных операциях, принимают sqlx.ExtContext, чтобы
// выполняться внутри транзакции вызывающего.
type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetOrCreate возвращает кошелёк пользователя, создавая его при необходимости.
func (r *WalletRepository) GetOrCreate(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING id, user_id, balance, created_at, updated_at
	`
	if err := sqlx.GetContext(ctx, q, &wallet, query, userID); err != nil {
		return nil, fmt.Errorf("wallet repository: get or create %w", err)
	}
	return &wallet, nil
}

// GetByUserID возвращает кошелёк пользователя без блокировки.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return common.GetByField[models.Wallet](ctx, r.db, "wallets", "user_id", userID, ErrWalletNotFound)
}

// LockByUserID берёт строку кошелька под FOR UPDATE внутри транзакции.
// Конкурирующие денежные операции над одним кошельком сериализуются здесь.
func (r *WalletRepository) LockByUserID(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := sqlx.GetContext(ctx, q, &wallet, `SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// LockByID берёт строку кошелька под FOR UPDATE по идентификатору кошелька.
func (r *WalletRepository) LockByID(ctx context.Context, q sqlx.ExtContext, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := sqlx.GetContext(ctx, q, &wallet, `SELECT * FROM wallets WHERE id = $1 FOR UPDATE`, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// HasEntry проверяет, существует ли запись данного типа по ссылке на заказ
// или заявку на вывод. Это основа идемпотентности: повторное событие
// обнаруживается до вставки.
func (r *WalletRepository) HasEntry(ctx context.Context, q sqlx.ExtContext, entryType string, orderID, withdrawalID *uuid.UUID) (bool, error) {
	var count int
	var err error
	switch {
	case orderID != nil:
		err = sqlx.GetContext(ctx, q, &count,
			`SELECT COUNT(*) FROM wallet_entries WHERE type = $1 AND order_id = $2`, entryType, *orderID)
	case withdrawalID != nil:
		err = sqlx.GetContext(ctx, q, &count,
			`SELECT COUNT(*) FROM wallet_entries WHERE type = $1 AND withdrawal_id = $2`, entryType, *withdrawalID)
	default:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("wallet repository: has entry %w", err)
	}
	return count > 0, nil
}

// InsertEntry вставляет запись журнала. Частичные уникальные индексы по
// (type, order_id) и (type, withdrawal_id) служат страховкой на случай
// гонки двух одновременных транзакций.
func (r *WalletRepository) InsertEntry(ctx context.Context, q sqlx.ExtContext, entry *models.WalletEntry) error {
	query := `
		INSERT INTO wallet_entries (wallet_id, type, amount, order_id, withdrawal_id, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	row := q.QueryRowxContext(ctx, query,
		entry.WalletID, entry.Type, entry.Amount, entry.OrderID, entry.WithdrawalID, entry.Description)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("wallet repository: insert entry %w", err)
	}
	return nil
}

// AdjustBalance изменяет баланс кошелька на delta в рамках транзакции вызывающего.
func (r *WalletRepository) AdjustBalance(ctx context.Context, q sqlx.ExtContext, walletID uuid.UUID, delta int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $2, updated_at = NOW() WHERE id = $1`, walletID, delta)
	if err != nil {
		return fmt.Errorf("wallet repository: adjust balance %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// ListEntries возвращает журнал кошелька постранично, новые записи первыми.
func (r *WalletRepository) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletEntry, error) {
	var entries []models.WalletEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM wallet_entries WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	return entries, err
}

// SumEntries агрегирует суммы записей указанных типов за период.
// Границы периода опциональны.
func (r *WalletRepository) SumEntries(ctx context.Context, walletID uuid.UUID, types []string, from, to *time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM wallet_entries WHERE wallet_id = $1 AND type = ANY($2)`
	args := []interface{}{walletID, pq.Array(types)}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("wallet repository: sum entries %w", err)
	}
	return total, nil
}

// PendingEscrow возвращает сумму средств, удерживаемых в эскроу по заказам
// кошелька, для которых ещё нет ни release, ни refund. Значение выводится
// из журнала и нигде не хранится.
func (r *WalletRepository) PendingEscrow(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var total int64
	query := `
		SELECT COALESCE(SUM(-h.amount), 0)
		FROM wallet_entries h
		WHERE h.wallet_id = $1 AND h.type = $2
		  AND NOT EXISTS (
			SELECT 1 FROM wallet_entries e
			WHERE e.order_id = h.order_id AND e.type IN ($3, $4)
		  )
	`
	err := r.db.GetContext(ctx, &total, query,
		walletID, models.EntryTypeEscrowHold, models.EntryTypeEscrowRelease, models.EntryTypeRefund)
	if err != nil {
		return 0, fmt.Errorf("wallet repository: pending escrow %w", err)
	}
	return total, nil
}
