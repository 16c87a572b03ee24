package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payment представляет платёжную сессию во внешнем шлюзе. На заказ
// приходится не более одной записи; externalID — идентификатор заказа
// в терминах шлюза, по нему сверяется подпись уведомления.
type Payment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	OrderID       uuid.UUID       `db:"order_id" json:"order_id"`
	ExternalID    string          `db:"external_id" json:"external_id"`
	TransactionID *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	Provider      string          `db:"provider" json:"provider"`
	Token         *string         `db:"token" json:"token,omitempty"`
	RedirectURL   *string         `db:"redirect_url" json:"redirect_url,omitempty"`
	Status        string          `db:"status" json:"status"`
	Amount        int64           `db:"amount" json:"amount"`
	PaidAmount    int64           `db:"paid_amount" json:"paid_amount"`
	Currency      string          `db:"currency" json:"currency"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	ExpiresAt     *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// IsTerminal сообщает, достиг ли платёж конечного статуса.
func (p *Payment) IsTerminal() bool {
	_, ok := TerminalPaymentStatuses[p.Status]
	return ok
}
