package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
)

// OrderRepository implements ports.OrderRepository on pgx
type OrderRepository struct {
	db ports.DBPort
}

// NewOrderRepository creates a new payment order repository
func NewOrderRepository(db ports.DBPort) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Create inserts a pending payment order
func (r *OrderRepository) Create(ctx context.Context, tx ports.DBTX, order *domain.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders
			(order_id, user_id, plan_id, amount_kopecks, status, payment_id, recurrent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.executor(tx).Exec(ctx, query,
		order.OrderID, order.UserID, order.PlanID, order.AmountKopecks,
		order.Status, order.PaymentID, order.Recurrent, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create payment order: %w", err)
	}
	return nil
}

// GetByOrderID retrieves an order by its identifier
func (r *OrderRepository) GetByOrderID(ctx context.Context, db ports.DBTX, orderID string) (*domain.PaymentOrder, error) {
	query := `
		SELECT order_id, user_id, plan_id, amount_kopecks, status, payment_id, recurrent, created_at, updated_at
		FROM payment_orders
		WHERE order_id = $1`

	var order domain.PaymentOrder
	err := r.executor(db).QueryRow(ctx, query, orderID).Scan(
		&order.OrderID, &order.UserID, &order.PlanID, &order.AmountKopecks,
		&order.Status, &order.PaymentID, &order.Recurrent, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get payment order: %w", err)
	}
	return &order, nil
}

// Update persists the order's terminal state. Orders only ever move from
// pending to paid, failed or cancelled; the WHERE clause keeps a late
// webhook from overwriting a terminal status.
func (r *OrderRepository) Update(ctx context.Context, tx ports.DBTX, order *domain.PaymentOrder) error {
	query := `
		UPDATE payment_orders
		SET status = $2, payment_id = $3, updated_at = $4
		WHERE order_id = $1 AND status = $5`

	tag, err := r.executor(tx).Exec(ctx, query,
		order.OrderID, order.Status, order.PaymentID, order.UpdatedAt,
		domain.OrderStatusPending,
	)
	if err != nil {
		return fmt.Errorf("update payment order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
