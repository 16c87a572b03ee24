package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrServiceNotFound = errors.New("service not found")

type ServiceRepository struct {
	db *sqlx.DB
}

func NewServiceRepository(db *sqlx.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// Create вставляет услугу продавца.
func (r *ServiceRepository) Create(ctx context.Context, s *models.Service) error {
	query := `
		INSERT INTO services (seller_id, title, description, price, delivery_days, max_revisions, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		s.SellerID, s.Title, s.Description, s.Price, s.DeliveryDays, s.MaxRevisions, s.IsActive)
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("service repository: create %w", err)
	}
	return nil
}

// GetByID возвращает услугу по идентификатору.
func (r *ServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	return common.GetByID[models.Service](ctx, r.db, "services", id, ErrServiceNotFound)
}

// ListActive возвращает активные услуги для каталога.
func (r *ServiceRepository) ListActive(ctx context.Context, limit, offset int) ([]models.Service, error) {
	items := []models.Service{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM services
		WHERE is_active = TRUE
		ORDER BY completed_orders DESC, created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service repository: list active %w", err)
	}
	return items, nil
}

// ListBySeller возвращает услуги продавца, включая неактивные.
func (r *ServiceRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Service, error) {
	items := []models.Service{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM services
		WHERE seller_id = $1
		ORDER BY created_at DESC
	`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("service repository: list by seller %w", err)
	}
	return items, nil
}

// SetActive включает или выключает услугу в каталоге.
func (r *ServiceRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE services SET is_active = $2, updated_at = NOW() WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("service repository: set active %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrServiceNotFound
	}
	return nil
}
