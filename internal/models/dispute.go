package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute представляет спор по заказу. Открытие спора переводит заказ в
// статус disputed; единственный выход из него — решение администратора.
type Dispute struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OrderID    uuid.UUID  `db:"order_id" json:"order_id"`
	OpenedBy   uuid.UUID  `db:"opened_by" json:"opened_by"`
	Reason     string     `db:"reason" json:"reason"`
	Status     string     `db:"status" json:"status"`
	Resolution *string    `db:"resolution" json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	AdminNotes *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
