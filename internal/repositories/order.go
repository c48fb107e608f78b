package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"live-shopping-platform/internal/models"
)

// PostgresOrderRepository implements OrderRepository on PostgreSQL
type PostgresOrderRepository struct {
	db *sql.DB
}

// NewPostgresOrderRepository creates a new Postgres-backed order repository
func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// CreateFromSession converts a session cart into an order inside a single
// transaction: order row, one line per cart item, and the session's
// converted_order_id stamp all commit together or not at all.
func (r *PostgresOrderRepository) CreateFromSession(ctx context.Context, session *models.Session, items []models.CartItem) (*models.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Generate unique order number (retry if collision)
	orderNumber := models.GenerateOrderNumber()
	for i := 0; i < 5; i++ {
		var exists bool
		err = tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)", orderNumber).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check order number uniqueness: %w", err)
		}
		if !exists {
			break
		}
		orderNumber = models.GenerateOrderNumber()
	}

	order := &models.Order{
		OrderNumber: orderNumber,
		SessionID:   session.ID,
		ClientID:    session.ClientID,
		TotalAmount: models.ComputeCartState(session.ID, items).TotalValue,
		Status:      models.OrderPending,
		CreatedAt:   time.Now(),
	}
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, session_id, client_id, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		order.OrderNumber,
		order.SessionID,
		order.ClientID,
		order.TotalAmount,
		order.Status,
		order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for i := range items {
		item := &items[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, batch_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID,
			item.BatchID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item for batch %d: %w", item.BatchID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE live_sessions SET converted_order_id = $1 WHERE id = $2", order.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark session converted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order creation: %w", err)
	}
	return order, nil
}

// GetOrderByID retrieves an order by ID
func (r *PostgresOrderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_number, session_id, client_id, total_amount, status, created_at
		FROM orders WHERE id = $1`, id).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.SessionID,
		&order.ClientID,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetOrderItems retrieves the line items of an order
func (r *PostgresOrderRepository) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, batch_id, product_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.BatchID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
