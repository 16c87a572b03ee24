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

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create вставляет открытый спор по заказу.
func (r *DisputeRepository) Create(ctx context.Context, q sqlx.ExtContext, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (order_id, opened_by, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	row := q.QueryRowxContext(ctx, query, d.OrderID, d.OpenedBy, d.Reason, d.Status)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

// LockByID берёт спор под FOR UPDATE для разрешения.
func (r *DisputeRepository) LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := sqlx.GetContext(ctx, q, &d, `SELECT * FROM disputes WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return &d, nil
}

// GetOpenByOrderID возвращает незакрытый спор по заказу, если он есть.
func (r *DisputeRepository) GetOpenByOrderID(ctx context.Context, q sqlx.ExtContext, orderID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := sqlx.GetContext(ctx, q, &d, `
		SELECT * FROM disputes WHERE order_id = $1 AND status = $2
	`, orderID, models.DisputeStatusOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return &d, nil
}

// UpdateResolved сохраняет решение по спору.
func (r *DisputeRepository) UpdateResolved(ctx context.Context, q sqlx.ExtContext, d *models.Dispute) error {
	query := `
		UPDATE disputes SET status = $2, resolution = $3, resolved_by = $4,
			admin_notes = $5, resolved_at = $6
		WHERE id = $1
	`
	res, err := q.ExecContext(ctx, query, d.ID, d.Status, d.Resolution, d.ResolvedBy, d.AdminNotes, d.ResolvedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: update resolved %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

// ListByUser возвращает споры, где пользователь — покупатель или продавец заказа.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	items := []models.Dispute{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT d.* FROM disputes d
		JOIN orders o ON o.id = d.order_id
		WHERE o.buyer_id = $1 OR o.seller_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list by user %w", err)
	}
	return items, nil
}

// ListOpen возвращает открытые споры для админской очереди.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	items := []models.Dispute{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM disputes
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, models.DisputeStatusOpen, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list open %w", err)
	}
	return items, nil
}
