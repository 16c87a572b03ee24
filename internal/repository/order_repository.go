package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create вставляет новый заказ со снапшотом условий услуги.
func (r *OrderRepository) Create(ctx context.Context, q sqlx.ExtContext, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, seller_id, service_id, title, price, delivery_days,
			max_revisions, requirements, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	row := q.QueryRowxContext(ctx, query,
		order.BuyerID, order.SellerID, order.ServiceID, order.Title, order.Price,
		order.DeliveryDays, order.MaxRevisions, order.Requirements, order.Status, order.DueDate)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("order repository: create %w", err)
	}
	return nil
}

// GetByID возвращает заказ без блокировки.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return common.GetByID[models.Order](ctx, r.db, "orders", id, ErrOrderNotFound)
}

// LockByID берёт строку заказа под FOR UPDATE внутри транзакции.
// Любой переход статуса начинается с этого вызова, поэтому два
// конкурирующих события над одним заказом выполняются последовательно.
func (r *OrderRepository) LockByID(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q, &order, `SELECT * FROM orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Update сохраняет изменяемые поля заказа. Снапшот условий (цена, срок,
// лимит правок) намеренно не входит в запрос.
func (r *OrderRepository) Update(ctx context.Context, q sqlx.ExtContext, order *models.Order) error {
	query := `
		UPDATE orders SET status = $2, is_paid = $3, revision_count = $4, due_date = $5,
			paid_at = $6, delivered_at = $7, completed_at = $8, cancelled_at = $9,
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := q.ExecContext(ctx, query,
		order.ID, order.Status, order.IsPaid, order.RevisionCount, order.DueDate,
		order.PaidAt, order.DeliveredAt, order.CompletedAt, order.CancelledAt)
	if err != nil {
		return fmt.Errorf("order repository: update %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// AddAttachment прикрепляет файл требований к заказу.
func (r *OrderRepository) AddAttachment(ctx context.Context, q sqlx.ExtContext, a *models.OrderAttachment) error {
	query := `
		INSERT INTO order_attachments (order_id, file_name, file_path)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	row := q.QueryRowxContext(ctx, query, a.OrderID, a.FileName, a.FilePath)
	return row.Scan(&a.ID, &a.CreatedAt)
}

// AddDelivery сохраняет файл результата, загруженный продавцом.
func (r *OrderRepository) AddDelivery(ctx context.Context, q sqlx.ExtContext, d *models.OrderDelivery) error {
	query := `
		INSERT INTO order_deliveries (order_id, file_name, file_path, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	row := q.QueryRowxContext(ctx, query, d.OrderID, d.FileName, d.FilePath, d.Note)
	return row.Scan(&d.ID, &d.CreatedAt)
}

// ListDeliveries возвращает файлы результата по заказу.
func (r *OrderRepository) ListDeliveries(ctx context.Context, orderID uuid.UUID) ([]models.OrderDelivery, error) {
	var deliveries []models.OrderDelivery
	err := r.db.SelectContext(ctx, &deliveries, `
		SELECT * FROM order_deliveries WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	return deliveries, err
}

// ListAttachments возвращает файлы требований по заказу.
func (r *OrderRepository) ListAttachments(ctx context.Context, orderID uuid.UUID) ([]models.OrderAttachment, error) {
	var attachments []models.OrderAttachment
	err := r.db.SelectContext(ctx, &attachments, `
		SELECT * FROM order_attachments WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	return attachments, err
}

// ListByUser возвращает заказы пользователя как покупателя и как продавца.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, []models.Order, error) {
	var asBuyer []models.Order
	if err := r.db.SelectContext(ctx, &asBuyer, `
		SELECT * FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC
	`, userID); err != nil {
		return nil, nil, err
	}

	var asSeller []models.Order
	if err := r.db.SelectContext(ctx, &asSeller, `
		SELECT * FROM orders WHERE seller_id = $1 ORDER BY created_at DESC
	`, userID); err != nil {
		return nil, nil, err
	}

	return asBuyer, asSeller, nil
}

// IncrementCompletionStats увеличивает счётчики завершённых заказов продавца
// и услуги. Вызывается в одной транзакции с переводом заказа в completed.
func (r *OrderRepository) IncrementCompletionStats(ctx context.Context, q sqlx.ExtContext, sellerID, serviceID uuid.UUID) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE users SET completed_orders = completed_orders + 1, updated_at = NOW() WHERE id = $1`, sellerID); err != nil {
		return fmt.Errorf("order repository: increment seller stats %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE services SET completed_orders = completed_orders + 1, updated_at = NOW() WHERE id = $1`, serviceID); err != nil {
		return fmt.Errorf("order repository: increment service stats %w", err)
	}
	return nil
}
