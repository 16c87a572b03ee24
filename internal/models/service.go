package models

import (
	"time"

	"github.com/google/uuid"
)

// Service описывает услугу в каталоге продавца. Заказ копирует из неё
// заголовок, цену, срок и лимит правок в момент создания.
type Service struct {
	ID              uuid.UUID `db:"id" json:"id"`
	SellerID        uuid.UUID `db:"seller_id" json:"seller_id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Price           int64     `db:"price" json:"price"`
	DeliveryDays    int       `db:"delivery_days" json:"delivery_days"`
	MaxRevisions    int       `db:"max_revisions" json:"max_revisions"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CompletedOrders int       `db:"completed_orders" json:"completed_orders"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
