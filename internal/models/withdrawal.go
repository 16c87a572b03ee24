package models

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal представляет заявку продавца на вывод средств. Полная сумма
// удерживается с баланса в момент создания заявки, а не при одобрении.
type Withdrawal struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	WalletID      uuid.UUID  `db:"wallet_id" json:"wallet_id"`
	Amount        int64      `db:"amount" json:"amount"`
	Fee           int64      `db:"fee" json:"fee"`
	NetAmount     int64      `db:"net_amount" json:"net_amount"`
	BankName      string     `db:"bank_name" json:"bank_name"`
	AccountNumber string     `db:"account_number" json:"account_number"`
	AccountHolder string     `db:"account_holder" json:"account_holder"`
	Status        string     `db:"status" json:"status"`
	AdminNotes    *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	ProcessedBy   *uuid.UUID `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt   *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
