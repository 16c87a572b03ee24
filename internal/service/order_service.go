package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// OrderRepository описывает взаимодействие сервиса с хранилищем заказов.
type OrderRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, q sqlx.ExtContext, order *models.Order) error
	AddAttachment(ctx context.Context, q sqlx.ExtContext, a *models.OrderAttachment) error
	AddDelivery(ctx context.Context, q sqlx.ExtContext, d *models.OrderDelivery) error
	ListDeliveries(ctx context.Context, orderID uuid.UUID) ([]models.OrderDelivery, error)
	ListAttachments(ctx context.Context, orderID uuid.UUID) ([]models.OrderAttachment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, []models.Order, error)
	IncrementCompletionStats(ctx context.Context, q sqlx.ExtContext, sellerID, serviceID uuid.UUID) error
}

// CatalogRepository описывает чтение каталога услуг.
type CatalogRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// PaymentGateway описывает создание платёжной сессии во внешнем шлюзе.
type PaymentGateway interface {
	CreateSession(ctx context.Context, orderID uuid.UUID, amount int64, buyerEmail string, items []gateway.SessionItem) (*gateway.Session, error)
}

// EscrowCoordinator описывает операции escrow, выполняемые внутри уже
// открытой транзакции вместе со сменой статуса заказа.
type EscrowCoordinator interface {
	ReleaseEscrow(ctx context.Context, tx *sqlx.Tx, order *models.Order) error
	RefundEscrow(ctx context.Context, tx *sqlx.Tx, order *models.Order, reason string) error
}

// UserReader описывает чтение пользователей для платёжной сессии.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// CreateOrderInput параметры создания заказа.
type CreateOrderInput struct {
	ServiceID    uuid.UUID  `json:"service_id"`
	Requirements string     `json:"requirements"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// DeliveryFile файл результата, передаваемый при сдаче заказа.
type DeliveryFile struct {
	FileName string
	FilePath string
	Note     *string
}

// OrderService содержит бизнес-логику жизненного цикла заказа. Все переходы
// статусов проверяют актора и текущий статус; финансовые переходы выполняются
// одной транзакцией с записями журнала кошелька.
type OrderService struct {
	store         TxManager
	orders        OrderRepository
	catalog       CatalogRepository
	payments      PaymentRepository
	users         UserReader
	gateway       PaymentGateway
	escrow        EscrowCoordinator
	notifier      Notifier
	provider      string
	currency      string
	paymentExpiry time.Duration
	log           *logrus.Entry
}

// NewOrderService создаёт сервис заказов.
func NewOrderService(store TxManager, orders OrderRepository, catalog CatalogRepository, payments PaymentRepository, users UserReader, gw PaymentGateway, escrow EscrowCoordinator, notifier Notifier, provider, currency string, paymentExpiry time.Duration) *OrderService {
	return &OrderService{
		store:         store,
		orders:        orders,
		catalog:       catalog,
		payments:      payments,
		users:         users,
		gateway:       gw,
		escrow:        escrow,
		notifier:      notifier,
		provider:      provider,
		currency:      currency,
		paymentExpiry: paymentExpiry,
		log:           logger.WithComponent("order_service"),
	}
}

// CreateOrder создаёт черновик заказа по активной услуге. Цена, срок и лимит
// правок копируются из услуги и фиксируются на весь жизненный цикл заказа.
func (s *OrderService) CreateOrder(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	svc, err := s.catalog.GetByID(ctx, input.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return nil, apperror.ErrServiceNotFound
		}
		return nil, fmt.Errorf("order service: создание заказа %w", err)
	}
	if !svc.IsActive {
		return nil, apperror.New(apperror.ErrCodeValidation, "услуга недоступна для заказа")
	}
	if svc.SellerID == buyerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя заказать собственную услугу")
	}

	order := &models.Order{
		BuyerID:      buyerID,
		SellerID:     svc.SellerID,
		ServiceID:    svc.ID,
		Title:        svc.Title,
		Price:        svc.Price,
		DeliveryDays: svc.DeliveryDays,
		MaxRevisions: svc.MaxRevisions,
		Requirements: input.Requirements,
		Status:       models.OrderStatusDraft,
	}
	if input.Deadline != nil {
		if !input.Deadline.After(time.Now()) {
			return nil, apperror.New(apperror.ErrCodeValidation, "срок выполнения должен быть в будущем")
		}
		order.DueDate = input.Deadline
	}

	if err := s.orders.Create(ctx, s.store.DB(), order); err != nil {
		return nil, fmt.Errorf("order service: создание заказа %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"buyer_id": buyerID,
		"price":    order.Price,
	}).Info("создан черновик заказа")
	return order, nil
}

// ConfirmOrder подтверждает черновик: создаётся платёжная сессия в шлюзе,
// заказ переходит в waiting_payment. Доступно только покупателю.
func (s *OrderService) ConfirmOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Payment, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, apperror.ErrForbidden
	}
	if order.Status != models.OrderStatusDraft {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("заказ в статусе %s нельзя подтвердить", order.Status))
	}

	buyer, err := s.users.GetByID(ctx, order.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("order service: покупатель %w", err)
	}

	session, err := s.gateway.CreateSession(ctx, order.ID, order.Price, buyer.Email, []gateway.SessionItem{
		{Name: order.Title, Price: order.Price, Quantity: 1},
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUpstream, "платёжный шлюз недоступен")
	}

	expiresAt := time.Now().Add(s.paymentExpiry)
	payment := &models.Payment{
		OrderID:     order.ID,
		ExternalID:  session.ExternalID,
		Provider:    s.provider,
		Token:       &session.Token,
		RedirectURL: &session.RedirectURL,
		Status:      models.PaymentStatusPending,
		Amount:      order.Price,
		Currency:    s.currency,
		ExpiresAt:   &expiresAt,
	}

	err = s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.orders.LockByID(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status != models.OrderStatusDraft {
			return apperror.New(apperror.ErrCodeInvalidState, "заказ уже подтверждён")
		}
		locked.Status = models.OrderStatusWaitingPayment
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}
		return s.payments.Create(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(order.SellerID, "order_confirmed", order, nil)
	return payment, nil
}

// StartWork переводит оплаченный заказ в работу. Доступно только продавцу.
func (s *OrderService) StartWork(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if locked.SellerID != sellerID {
			return apperror.ErrForbidden
		}
		if locked.Status != models.OrderStatusPaidEscrow {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("заказ в статусе %s нельзя взять в работу", locked.Status))
		}
		locked.Status = models.OrderStatusInProgress
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(order.BuyerID, "order_started", order, nil)
	return order, nil
}

// Deliver сдаёт результат работы. Требуется хотя бы один файл; доступно
// только продавцу из статусов in_progress и revision.
func (s *OrderService) Deliver(ctx context.Context, sellerID, orderID uuid.UUID, files []DeliveryFile) (*models.Order, error) {
	if len(files) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "нужен хотя бы один файл результата")
	}

	var order *models.Order
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if locked.SellerID != sellerID {
			return apperror.ErrForbidden
		}
		if locked.Status != models.OrderStatusInProgress && locked.Status != models.OrderStatusRevision {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("заказ в статусе %s нельзя сдать", locked.Status))
		}

		now := time.Now()
		locked.Status = models.OrderStatusDelivered
		locked.DeliveredAt = &now
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}
		for _, f := range files {
			d := &models.OrderDelivery{
				OrderID:  locked.ID,
				FileName: f.FileName,
				FilePath: f.FilePath,
				Note:     f.Note,
			}
			if err := s.orders.AddDelivery(ctx, tx, d); err != nil {
				return err
			}
		}
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(order.BuyerID, "order_delivered", order, nil)
	return order, nil
}

// RequestRevision отправляет заказ на доработку. Доступно только покупателю;
// при исчерпанном лимите правок возвращает QUOTA_EXCEEDED.
func (s *OrderService) RequestRevision(ctx context.Context, buyerID, orderID uuid.UUID, comment string) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if locked.BuyerID != buyerID {
			return apperror.ErrForbidden
		}
		if locked.Status != models.OrderStatusDelivered {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("доработку можно запросить только по сданному заказу, текущий статус %s", locked.Status))
		}
		if locked.RevisionCount >= locked.MaxRevisions {
			return apperror.New(apperror.ErrCodeQuotaExceeded,
				fmt.Sprintf("лимит правок исчерпан (%d)", locked.MaxRevisions))
		}

		locked.Status = models.OrderStatusRevision
		locked.RevisionCount++
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(order.SellerID, "revision_requested", order, nil)
	return order, nil
}

// Approve принимает работу: заказ завершается, escrow выпускается продавцу
// и счётчики выполненных заказов обновляются в одной транзакции.
func (s *OrderService) Approve(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if locked.BuyerID != buyerID {
			return apperror.ErrForbidden
		}
		if locked.Status != models.OrderStatusDelivered {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("принять можно только сданный заказ, текущий статус %s", locked.Status))
		}

		now := time.Now()
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
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(order.SellerID, "order_completed", order, nil)
	return order, nil
}

// Cancel отменяет заказ. Неоплаченный заказ может отменить любая сторона,
// оплаченный — только покупатель; возврат средств выполняется в той же
// транзакции, что и смена статуса.
func (s *OrderService) Cancel(ctx context.Context, actorID, orderID uuid.UUID, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if locked.BuyerID != actorID && locked.SellerID != actorID {
			return apperror.ErrForbidden
		}
		if _, ok := models.CancellableOrderStatuses[locked.Status]; !ok {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("заказ в статусе %s нельзя отменить", locked.Status))
		}
		if locked.Status == models.OrderStatusPaidEscrow && locked.BuyerID != actorID {
			return apperror.ErrForbidden
		}

		now := time.Now()
		wasPaid := locked.IsPaid
		locked.Status = models.OrderStatusCancelled
		locked.CancelledAt = &now
		// возврат снимает признак оплаты: средства больше не удерживаются
		locked.IsPaid = false
		if err := s.orders.Update(ctx, tx, locked); err != nil {
			return err
		}
		if wasPaid {
			if err := s.escrow.RefundEscrow(ctx, tx, locked, reason); err != nil {
				return err
			}
		}
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	other := order.SellerID
	if actorID == order.SellerID {
		other = order.BuyerID
	}
	s.notifier.Notify(other, "order_cancelled", order, nil)
	return order, nil
}

// AddAttachment прикрепляет файл требований к черновику. Доступно покупателю.
func (s *OrderService) AddAttachment(ctx context.Context, buyerID, orderID uuid.UUID, fileName, filePath string) error {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.BuyerID != buyerID {
		return apperror.ErrForbidden
	}
	if order.Status != models.OrderStatusDraft {
		return apperror.New(apperror.ErrCodeInvalidState, "файлы требований можно прикладывать только к черновику")
	}
	a := &models.OrderAttachment{OrderID: orderID, FileName: fileName, FilePath: filePath}
	if err := s.orders.AddAttachment(ctx, s.store.DB(), a); err != nil {
		return fmt.Errorf("order service: прикрепление файла %w", err)
	}
	return nil
}

// GetOrder возвращает заказ с файлами. Доступно сторонам заказа.
func (s *OrderService) GetOrder(ctx context.Context, actorID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID && order.SellerID != actorID {
		return nil, apperror.ErrForbidden
	}

	if order.Attachments, err = s.orders.ListAttachments(ctx, orderID); err != nil {
		return nil, fmt.Errorf("order service: файлы требований %w", err)
	}
	if order.Deliveries, err = s.orders.ListDeliveries(ctx, orderID); err != nil {
		return nil, fmt.Errorf("order service: файлы результата %w", err)
	}
	return order, nil
}

// ListMyOrders возвращает заказы пользователя как покупателя и как продавца.
func (s *OrderService) ListMyOrders(ctx context.Context, userID uuid.UUID) (asBuyer, asSeller []models.Order, err error) {
	asBuyer, asSeller, err = s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("order service: список заказов %w", err)
	}
	return asBuyer, asSeller, nil
}

// CancelExpiredPayments отменяет заказы, срок оплаты которых истёк, а вебхук
// от шлюза так и не пришёл. Запускается периодически фоновой задачей.
func (s *OrderService) CancelExpiredPayments(ctx context.Context) (int, error) {
	expired, err := s.payments.ListExpired(ctx, time.Now(), 100)
	if err != nil {
		return 0, fmt.Errorf("order service: просроченные платежи %w", err)
	}

	cancelled := 0
	for _, p := range expired {
		payment := p
		err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			locked, err := s.payments.LockByExternalID(ctx, tx, payment.ExternalID)
			if err != nil {
				return err
			}
			if locked.IsTerminal() {
				return nil
			}
			locked.Status = models.PaymentStatusExpired
			if err := s.payments.UpdateStatus(ctx, tx, locked); err != nil {
				return err
			}

			order, err := s.orders.LockByID(ctx, tx, locked.OrderID)
			if err != nil {
				return err
			}
			if order.IsPaid || order.Status != models.OrderStatusWaitingPayment {
				return nil
			}
			now := time.Now()
			order.Status = models.OrderStatusCancelled
			order.CancelledAt = &now
			return s.orders.Update(ctx, tx, order)
		})
		if err != nil {
			s.log.WithError(err).WithField("external_id", payment.ExternalID).
				Error("не удалось отменить просроченный платёж")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *OrderService) getOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order service: получение заказа %w", err)
	}
	return order, nil
}

func (s *OrderService) lockOrder(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.LockByID(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}
