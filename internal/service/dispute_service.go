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

// DisputeRepository описывает взаимодействие с хранилищем споров.
type DisputeRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Dispute, error)
	GetOpenByOrderID(ctx context.Context, q sqlx.ExtContext, orderID uuid.UUID) (*models.Dispute, error)
	UpdateResolved(ctx context.Context, q sqlx.ExtContext, d *models.Dispute) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
}

// DisputeService содержит логику споров. Спор замораживает заказ в статусе
// disputed; решение администратора завершает заказ в пользу продавца или
// отменяет его с возвратом покупателю — в обоих случаях одной транзакцией.
type DisputeService struct {
	store    TxManager
	disputes DisputeRepository
	orders   OrderRepository
	escrow   EscrowCoordinator
	notifier Notifier
	log      *logrus.Entry
}

// NewDisputeService создаёт сервис споров.
func NewDisputeService(store TxManager, disputes DisputeRepository, orders OrderRepository, escrow EscrowCoordinator, notifier Notifier) *DisputeService {
	return &DisputeService{
		store:    store,
		disputes: disputes,
		orders:   orders,
		escrow:   escrow,
		notifier: notifier,
		log:      logger.WithComponent("dispute_service"),
	}
}

// Open открывает спор по заказу. Доступно обеим сторонам из статусов
// in_progress, delivered и revision; повторный спор по заказу не допускается.
func (s *DisputeService) Open(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Dispute, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "укажите причину спора")
	}

	var dispute *models.Dispute
	var order *models.Order
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.orders.LockByID(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return apperror.ErrOrderNotFound
			}
			return err
		}
		if locked.BuyerID != userID && locked.SellerID != userID {
			return apperror.ErrForbidden
		}
		if _, ok := models.DisputableOrderStatuses[locked.Status]; !ok {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("по заказу в статусе %s нельзя открыть спор", locked.Status))
		}

		if _, err := s.disputes.GetOpenByOrderID(ctx, tx, orderID); err == nil {
			return apperror.New(apperror.ErrCodeConflict, "по заказу уже открыт спор")
		} else if !errors.Is(err, repository.ErrDisputeNotFound) {
			return err
		}

		d := &models.Dispute{
			OrderID:  orderID,
			OpenedBy: userID,
			Reason:   reason,
			Status:   models.DisputeStatusOpen,
		}
		if err := s.disputes.Create(ctx, tx, d); err != nil {
			return err
		}

		locked.Status = models.OrderStatusDisputed
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}
		dispute = d
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	other := order.SellerID
	if userID == order.SellerID {
		other = order.BuyerID
	}
	s.notifier.Notify(other, "dispute_opened", dispute, nil)

	s.log.WithFields(logrus.Fields{
		"dispute_id": dispute.ID,
		"order_id":   orderID,
		"opened_by":  userID,
	}).Info("открыт спор")
	return dispute, nil
}

// Resolve закрывает спор решением администратора. release_to_seller завершает
// заказ и выпускает escrow продавцу; refund_to_buyer отменяет заказ с полным
// возвратом. Заказ обязан выйти из статуса disputed в той же транзакции.
func (s *DisputeService) Resolve(ctx context.Context, adminID, disputeID uuid.UUID, resolution string, notes *string) (*models.Dispute, error) {
	if _, ok := models.ValidResolutions[resolution]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("неизвестное решение спора: %s", resolution))
	}

	var dispute *models.Dispute
	var order *models.Order
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		d, err := s.disputes.LockByID(ctx, tx, disputeID)
		if err != nil {
			if errors.Is(err, repository.ErrDisputeNotFound) {
				return apperror.ErrDisputeNotFound
			}
			return err
		}
		if d.Status != models.DisputeStatusOpen {
			return apperror.New(apperror.ErrCodeInvalidState, "спор уже разрешён")
		}

		locked, err := s.orders.LockByID(ctx, tx, d.OrderID)
		if err != nil {
			return err
		}
		if locked.Status != models.OrderStatusDisputed {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("заказ в статусе %s, ожидался disputed", locked.Status))
		}

		now := time.Now()
		switch resolution {
		case models.ResolutionReleaseToSeller:
			locked.Status = models.OrderStatusCompleted
			locked.CompletedAt = &now
			if err := s.orders.Update(ctx, tx, locked); err != nil {
				return err
			}
			if err := s.escrow.ReleaseEscrow(ctx, tx, locked); err != nil {
				return err
			}
			if err := s.orders.IncrementCompletionStats(ctx, tx, locked.SellerID, locked.ServiceID); err != nil {
				return err
			}
		case models.ResolutionRefundToBuyer:
			locked.Status = models.OrderStatusCancelled
			locked.CancelledAt = &now
			locked.IsPaid = false
			if err := s.orders.Update(ctx, tx, locked); err != nil {
				return err
			}
			if err := s.escrow.RefundEscrow(ctx, tx, locked, "решение по спору"); err != nil {
				return err
			}
		}

		d.Status = models.DisputeStatusResolved
		d.Resolution = &resolution
		d.ResolvedBy = &adminID
		d.AdminNotes = notes
		d.ResolvedAt = &now
		if err := s.disputes.UpdateResolved(ctx, tx, d); err != nil {
			return err
		}
		dispute = d
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(order.BuyerID, "dispute_resolved", dispute, nil)
	s.notifier.Notify(order.SellerID, "dispute_resolved", dispute, nil)

	s.log.WithFields(logrus.Fields{
		"dispute_id": disputeID,
		"resolution": resolution,
		"admin_id":   adminID,
	}).Info("спор разрешён")
	return dispute, nil
}

// GetByID возвращает спор. Доступно сторонам заказа.
func (s *DisputeService) GetByID(ctx context.Context, userID, disputeID uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repository.ErrDisputeNotFound) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute service: получение спора %w", err)
	}

	order, err := s.orders.GetByID(ctx, d.OrderID)
	if err != nil {
		return nil, fmt.Errorf("dispute service: заказ спора %w", err)
	}
	if order.BuyerID != userID && order.SellerID != userID {
		return nil, apperror.ErrForbidden
	}
	return d, nil
}

// ListMy возвращает споры по заказам пользователя.
func (s *DisputeService) ListMy(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.disputes.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute service: список споров %w", err)
	}
	return items, nil
}

// ListOpen возвращает очередь открытых споров для администратора.
func (s *DisputeService) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.disputes.ListOpen(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute service: очередь споров %w", err)
	}
	return items, nil
}
