package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrPaymentNotFound = errors.New("payment not found")

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create вставляет платёжную сессию. На заказ допускается одна запись.
func (r *PaymentRepository) Create(ctx context.Context, q sqlx.ExtContext, p *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, external_id, provider, token, redirect_url,
			status, amount, paid_amount, currency, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	row := q.QueryRowxContext(ctx, query,
		p.OrderID, p.ExternalID, p.Provider, p.Token, p.RedirectURL,
		p.Status, p.Amount, p.PaidAmount, p.Currency, p.Metadata, p.ExpiresAt)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// GetByOrderID возвращает платёж по заказу.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "order_id", orderID, ErrPaymentNotFound)
}

// LockByExternalID берёт платёж под FOR UPDATE по внешнему идентификатору.
// Две параллельные доставки одного вебхука сериализуются на этой строке.
func (r *PaymentRepository) LockByExternalID(ctx context.Context, q sqlx.ExtContext, externalID string) (*models.Payment, error) {
	var p models.Payment
	err := sqlx.GetContext(ctx, q, &p, `SELECT * FROM payments WHERE external_id = $1 FOR UPDATE`, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListExpired возвращает незавершённые платежи с истёкшим сроком оплаты.
func (r *PaymentRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Payment, error) {
	items := []models.Payment{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM payments
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3
	`, models.PaymentStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("payment repository: list expired %w", err)
	}
	return items, nil
}

// UpdateStatus сохраняет статус платежа и данные уведомления шлюза.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, q sqlx.ExtContext, p *models.Payment) error {
	query := `
		UPDATE payments SET status = $2, transaction_id = $3, paid_amount = $4,
			metadata = $5, updated_at = NOW()
		WHERE id = $1
	`
	res, err := q.ExecContext(ctx, query, p.ID, p.Status, p.TransactionID, p.PaidAmount, p.Metadata)
	if err != nil {
		return fmt.Errorf("payment repository: update status %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
