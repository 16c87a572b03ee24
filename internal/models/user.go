package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User описывает пользователя платформы. Роль используется только внешним
// слоем авторизации; финансовое ядро записывает идентификатор актора
// исключительно для атрибуции действий.
type User struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	Username        string    `db:"username" json:"username"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	Role            string    `db:"role" json:"role"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CompletedOrders int       `db:"completed_orders" json:"completed_orders"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Notification хранит событие для пользователя. Доставка уведомлений —
// best-effort и никогда не участвует в финансовой транзакции.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Type      string          `db:"type" json:"type"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Link      *string         `db:"link" json:"link,omitempty"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
