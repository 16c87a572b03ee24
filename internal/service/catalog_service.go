package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// CatalogStore описывает хранилище каталога услуг для сервиса.
type CatalogStore interface {
	Create(ctx context.Context, s *models.Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	ListActive(ctx context.Context, limit, offset int) ([]models.Service, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Service, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// CreateServiceInput параметры публикации услуги.
type CreateServiceInput struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Price        int64  `json:"price"`
	DeliveryDays int    `json:"delivery_days"`
	MaxRevisions int    `json:"max_revisions"`
}

// CatalogService содержит логику каталога услуг.
type CatalogService struct {
	repo CatalogStore
}

// NewCatalogService создаёт сервис каталога.
func NewCatalogService(repo CatalogStore) *CatalogService {
	return &CatalogService{repo: repo}
}

// Create публикует услугу продавца.
func (s *CatalogService) Create(ctx context.Context, sellerID uuid.UUID, input CreateServiceInput) (*models.Service, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "укажите название услуги")
	}
	if input.Price <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "цена должна быть положительной")
	}
	if input.DeliveryDays <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "срок выполнения должен быть положительным")
	}
	if input.MaxRevisions < 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "лимит правок не может быть отрицательным")
	}

	svc := &models.Service{
		SellerID:     sellerID,
		Title:        input.Title,
		Description:  input.Description,
		Price:        input.Price,
		DeliveryDays: input.DeliveryDays,
		MaxRevisions: input.MaxRevisions,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, svc); err != nil {
		return nil, fmt.Errorf("catalog service: создание услуги %w", err)
	}
	return svc, nil
}

// GetByID возвращает услугу.
func (s *CatalogService) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	svc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return nil, apperror.ErrServiceNotFound
		}
		return nil, fmt.Errorf("catalog service: получение услуги %w", err)
	}
	return svc, nil
}

// ListActive возвращает страницу активных услуг.
func (s *CatalogService) ListActive(ctx context.Context, limit, offset int) ([]models.Service, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.repo.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("catalog service: список услуг %w", err)
	}
	return items, nil
}

// ListMy возвращает услуги продавца, включая снятые с публикации.
func (s *CatalogService) ListMy(ctx context.Context, sellerID uuid.UUID) ([]models.Service, error) {
	items, err := s.repo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("catalog service: услуги продавца %w", err)
	}
	return items, nil
}

// SetActive включает или выключает услугу. Доступно только владельцу.
func (s *CatalogService) SetActive(ctx context.Context, sellerID, id uuid.UUID, active bool) error {
	svc, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if svc.SellerID != sellerID {
		return apperror.ErrForbidden
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("catalog service: смена активности %w", err)
	}
	return nil
}
