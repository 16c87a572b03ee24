package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/goroutine"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// Notifier описывает fire-and-forget доставку уведомлений. Вызывается после
// успешного перехода статуса; сбой доставки никогда не откатывает финансовую
// транзакцию, из которой уведомление отправлено.
type Notifier interface {
	Notify(userID uuid.UUID, notifType string, payload any, link *string)
}

// NotificationRepo описывает хранилище уведомлений.
type NotificationRepo interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// WSNotifier интерфейс для отправки WebSocket уведомлений.
type WSNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{}) error
}

// NotificationService сохраняет уведомления и рассылает их по WebSocket.
type NotificationService struct {
	repo NotificationRepo
	hub  WSNotifier
	log  *logrus.Entry
}

// NewNotificationService создаёт сервис уведомлений. hub может быть nil —
// тогда уведомления только сохраняются.
func NewNotificationService(repo NotificationRepo, hub WSNotifier) *NotificationService {
	return &NotificationService{
		repo: repo,
		hub:  hub,
		log:  logger.WithComponent("notification_service"),
	}
}

// Notify асинхронно сохраняет уведомление и рассылает его по WebSocket.
// Ошибки логируются и не возвращаются вызывающему.
func (s *NotificationService) Notify(userID uuid.UUID, notifType string, payload any, link *string) {
	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		raw, err := json.Marshal(payload)
		if err != nil {
			s.log.WithError(err).Warn("не удалось сериализовать уведомление")
			raw = []byte(fmt.Sprintf(`{"error":"marshal: %s"}`, notifType))
		}

		n := &models.Notification{
			UserID:  userID,
			Type:    notifType,
			Payload: raw,
			Link:    link,
		}
		if err := s.repo.Create(ctx, n); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("не удалось сохранить уведомление")
		}

		if s.hub != nil {
			if err := s.hub.BroadcastToUser(userID, notifType, n); err != nil {
				s.log.WithError(err).WithField("user_id", userID).Debug("WebSocket доставка не удалась")
			}
		}
	})
}

// List возвращает уведомления пользователя.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.repo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("notification service: список %w", err)
	}
	return items, nil
}

// MarkAsRead помечает уведомление прочитанным.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, userID, id); err != nil {
		return fmt.Errorf("notification service: отметка прочитанным %w", err)
	}
	return nil
}

// CountUnread возвращает число непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("notification service: счётчик непрочитанных %w", err)
	}
	return count, nil
}
