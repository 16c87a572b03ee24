package models

import (
	"time"

	"github.com/google/uuid"
)

// Order описывает заказ услуги с зафиксированным снапшотом условий.
// Цена, срок выполнения и лимит правок копируются из услуги при создании
// и после этого не меняются, даже если продавец отредактирует услугу.
type Order struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	BuyerID       uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID      uuid.UUID  `db:"seller_id" json:"seller_id"`
	ServiceID     uuid.UUID  `db:"service_id" json:"service_id"`
	Title         string     `db:"title" json:"title"`
	Price         int64      `db:"price" json:"price"`
	DeliveryDays  int        `db:"delivery_days" json:"delivery_days"`
	MaxRevisions  int        `db:"max_revisions" json:"max_revisions"`
	Requirements  string     `db:"requirements" json:"requirements"`
	Status        string     `db:"status" json:"status"`
	IsPaid        bool       `db:"is_paid" json:"is_paid"`
	RevisionCount int        `db:"revision_count" json:"revision_count"`
	DueDate       *time.Time `db:"due_date" json:"due_date,omitempty"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	DeliveredAt   *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt   *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	Attachments []OrderAttachment `json:"attachments,omitempty"`
	Deliveries  []OrderDelivery   `json:"deliveries,omitempty"`
}

// OrderAttachment описывает файл с требованиями, прикреплённый покупателем.
type OrderAttachment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OrderID   uuid.UUID `db:"order_id" json:"order_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	FilePath  string    `db:"file_path" json:"file_path"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderDelivery описывает файл результата, загруженный продавцом при сдаче.
type OrderDelivery struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OrderID   uuid.UUID `db:"order_id" json:"order_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	FilePath  string    `db:"file_path" json:"file_path"`
	Note      *string   `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
