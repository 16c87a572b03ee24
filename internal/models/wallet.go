package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet представляет кошелёк продавца. Баланс хранится в минимальных
// денежных единицах (int64), операции с плавающей точкой не используются.
type Wallet struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WalletEntry неизменяемая запись журнала кошелька. Отрицательная сумма —
// списание, положительная — зачисление. Заполняется не более одной ссылки:
// либо на заказ, либо на заявку на вывод.
type WalletEntry struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	WalletID     uuid.UUID  `db:"wallet_id" json:"wallet_id"`
	Type         string     `db:"type" json:"type"`
	Amount       int64      `db:"amount" json:"amount"`
	OrderID      *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	WithdrawalID *uuid.UUID `db:"withdrawal_id" json:"withdrawal_id,omitempty"`
	Description  string     `db:"description" json:"description"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// WalletSummary агрегированная сводка по кошельку. Все значения, кроме
// баланса, вычисляются из журнала и нигде не хранятся.
type WalletSummary struct {
	Balance        int64 `json:"balance"`
	PendingEscrow  int64 `json:"pending_escrow"`
	PeriodEarnings int64 `json:"period_earnings"`
	TotalEarnings  int64 `json:"total_earnings"`
	TotalWithdrawn int64 `json:"total_withdrawn"`
}
