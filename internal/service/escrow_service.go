package service

import (
	"context"
	"encoding/json"
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

// PaymentRepository описывает взаимодействие с хранилищем платёжных сессий.
type PaymentRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, p *models.Payment) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	LockByExternalID(ctx context.Context, q sqlx.ExtContext, externalID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, q sqlx.ExtContext, p *models.Payment) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Payment, error)
}

// WalletLedger описывает минимальный контракт журнала кошелька для
// координатора escrow и заявок на вывод.
type WalletLedger interface {
	EnsureWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.Wallet, error)
	ApplyEntry(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, entryType string, amount int64, orderID, withdrawalID *uuid.UUID, description string) (*models.WalletEntry, error)
}

// SignatureVerifier проверяет подпись уведомления платёжного шлюза.
type SignatureVerifier interface {
	VerifyNotification(externalOrderID, statusCode string, grossAmount int64, signature string) bool
}

// GatewayNotification разобранное уведомление платёжного шлюза.
type GatewayNotification struct {
	ExternalOrderID   string          `json:"order_id"`
	TransactionID     string          `json:"transaction_id"`
	StatusCode        string          `json:"status_code"`
	TransactionStatus string          `json:"transaction_status"`
	FraudStatus       string          `json:"fraud_status"`
	GrossAmount       int64           `json:"gross_amount"`
	Signature         string          `json:"signature_key"`
	Raw               json.RawMessage `json:"-"`
}

// EscrowService — координатор escrow. Единственная точка, через которую
// деньги заказа попадают в журнал кошелька: удержание при оплате, выпуск
// при завершении, возврат при отмене или споре.
type EscrowService struct {
	store      TxManager
	orders     OrderRepository
	payments   PaymentRepository
	ledger     WalletLedger
	verifier   SignatureVerifier
	notifier   Notifier
	feePercent int64
	log        *logrus.Entry
}

// NewEscrowService создаёт координатор escrow.
func NewEscrowService(store TxManager, orders OrderRepository, payments PaymentRepository, ledger WalletLedger, verifier SignatureVerifier, notifier Notifier, feePercent int64) *EscrowService {
	return &EscrowService{
		store:      store,
		orders:     orders,
		payments:   payments,
		ledger:     ledger,
		verifier:   verifier,
		notifier:   notifier,
		feePercent: feePercent,
		log:        logger.WithComponent("escrow_service"),
	}
}

// HandleGatewayNotification обрабатывает вебхук шлюза. Подпись проверяется
// до любых обращений к БД: при несовпадении состояние не меняется. Повторная
// доставка уведомления по платежу в терминальном статусе — no-op.
func (s *EscrowService) HandleGatewayNotification(ctx context.Context, n GatewayNotification) error {
	if !s.verifier.VerifyNotification(n.ExternalOrderID, n.StatusCode, n.GrossAmount, n.Signature) {
		return apperror.New(apperror.ErrCodeSignatureInvalid, "подпись уведомления не совпадает")
	}

	fraud := n.FraudStatus == "deny" || n.FraudStatus == "challenge"
	normalized := gateway.NormalizeStatus(n.TransactionStatus, fraud)

	var settled *models.Order

	err := s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		payment, err := s.payments.LockByExternalID(ctx, tx, n.ExternalOrderID)
		if err != nil {
			if errors.Is(err, repository.ErrPaymentNotFound) {
				return apperror.ErrPaymentNotFound
			}
			return err
		}

		if payment.IsTerminal() {
			s.log.WithFields(logrus.Fields{
				"external_id": n.ExternalOrderID,
				"status":      payment.Status,
			}).Info("повторное уведомление по завершённому платежу, пропускаем")
			return nil
		}

		if normalized == models.PaymentStatusSettlement && n.GrossAmount != payment.Amount {
			return apperror.New(apperror.ErrCodeValidation, "сумма уведомления не совпадает с суммой платежа")
		}

		payment.Status = normalized
		if n.TransactionID != "" {
			payment.TransactionID = &n.TransactionID
		}
		if normalized == models.PaymentStatusSettlement {
			payment.PaidAmount = n.GrossAmount
		}
		if len(n.Raw) > 0 {
			payment.Metadata = n.Raw
		}
		if err := s.payments.UpdateStatus(ctx, tx, payment); err != nil {
			return err
		}

		switch normalized {
		case models.PaymentStatusSettlement:
			order, err := s.markPaid(ctx, tx, payment.OrderID)
			if err != nil {
				return err
			}
			settled = order
		case models.PaymentStatusExpired, models.PaymentStatusCancelled, models.PaymentStatusFailed:
			if err := s.releaseUnpaidOrder(ctx, tx, payment.OrderID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if settled != nil {
		s.notifier.Notify(settled.BuyerID, "order_paid", settled, nil)
		s.notifier.Notify(settled.SellerID, "order_paid", settled, nil)
	}
	return nil
}

// markPaid переводит заказ в paid_escrow и удерживает его цену в журнале
// продавца. Идемпотентен: уже оплаченный заказ возвращается без изменений.
func (s *EscrowService) markPaid(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.LockByID(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, err
	}

	if order.IsPaid {
		return order, nil
	}
	if order.Status != models.OrderStatusWaitingPayment {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("заказ в статусе %s не может быть оплачен", order.Status))
	}

	now := time.Now()
	order.Status = models.OrderStatusPaidEscrow
	order.IsPaid = true
	order.PaidAt = &now
	if order.DueDate == nil {
		due := now.AddDate(0, 0, order.DeliveryDays)
		order.DueDate = &due
	}
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return nil, err
	}

	wallet, err := s.ledger.EnsureWallet(ctx, tx, order.SellerID)
	if err != nil {
		return nil, err
	}
	_, err = s.ledger.ApplyEntry(ctx, tx, wallet.ID, models.EntryTypeEscrowHold, -order.Price,
		&order.ID, nil, fmt.Sprintf("Удержание по заказу «%s»", order.Title))
	if err != nil && !apperror.IsConflict(err) {
		return nil, err
	}

	return order, nil
}

// releaseUnpaidOrder отменяет заказ, платёж по которому не состоялся.
func (s *EscrowService) releaseUnpaidOrder(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) error {
	order, err := s.orders.LockByID(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return apperror.ErrOrderNotFound
		}
		return err
	}
	if order.IsPaid || order.Status != models.OrderStatusWaitingPayment {
		return nil
	}

	now := time.Now()
	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now
	return s.orders.Update(ctx, tx, order)
}

// ReleaseEscrow выпускает удержанные средства продавцу: зачисление чистой
// суммы и комиссия платформы одной транзакцией с изменением статуса заказа.
// Комиссия считается целочисленно с округлением вниз, комиссия и чистая
// сумма в точности складываются в цену заказа. Повторный вызов — no-op.
func (s *EscrowService) ReleaseEscrow(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	wallet, err := s.ledger.EnsureWallet(ctx, tx, order.SellerID)
	if err != nil {
		return err
	}

	fee := order.Price * s.feePercent / 100
	net := order.Price - fee

	_, err = s.ledger.ApplyEntry(ctx, tx, wallet.ID, models.EntryTypeEscrowRelease, net,
		&order.ID, nil, fmt.Sprintf("Выплата по заказу «%s»", order.Title))
	if err != nil {
		if apperror.IsConflict(err) {
			return nil
		}
		return err
	}

	_, err = s.ledger.ApplyEntry(ctx, tx, wallet.ID, models.EntryTypePlatformFee, -fee,
		&order.ID, nil, fmt.Sprintf("Комиссия платформы %d%%", s.feePercent))
	if err != nil && !apperror.IsConflict(err) {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"net":      net,
		"fee":      fee,
	}).Info("escrow выпущен продавцу")
	return nil
}

// RefundEscrow возвращает удержанные средства покупателю. В журнале продавца
// остаётся парная запись REFUND, обнуляющая обязательство по заказу.
// Повторный вызов — no-op.
func (s *EscrowService) RefundEscrow(ctx context.Context, tx *sqlx.Tx, order *models.Order, reason string) error {
	wallet, err := s.ledger.EnsureWallet(ctx, tx, order.SellerID)
	if err != nil {
		return err
	}

	desc := fmt.Sprintf("Возврат по заказу «%s»", order.Title)
	if reason != "" {
		desc = fmt.Sprintf("%s: %s", desc, reason)
	}
	_, err = s.ledger.ApplyEntry(ctx, tx, wallet.ID, models.EntryTypeRefund, order.Price,
		&order.ID, nil, desc)
	if err != nil {
		if apperror.IsConflict(err) {
			return nil
		}
		return err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"amount":   order.Price,
	}).Info("escrow возвращён покупателю")
	return nil
}
