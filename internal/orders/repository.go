package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/rmarques/storefront-checkout/internal/checkout"
	"github.com/rmarques/storefront-checkout/internal/domain"
)

// Repository is the Postgres order store. The write primitives are
// deliberately single-row (no BeginTx): the checkout writer owns the
// header/lines sequencing and its compensating rollback, and the tests for
// that rollback depend on each step being independently observable.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, order.ID, order.UserID, order.TotalAmount, order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repository) InsertLine(ctx context.Context, orderID string, line *domain.OrderLine) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, product_name, price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, line.ID, orderID, line.ProductID, line.ProductName, line.Price, line.Quantity)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (r *Repository) DeleteLines(ctx context.Context, orderID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return nil
}

func (r *Repository) DeleteOrder(ctx context.Context, orderID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// GetByID loads an order with its lines, scoped to the owning user. A
// mismatched user gets the same nil as a missing order so order ids cannot
// be probed for existence. A failed line query is an error, never an order
// with a falsely empty line list.
func (r *Repository) GetByID(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, orderID, userID).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, price, quantity
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.ProductName, &line.Price, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order items rows: %w", err)
	}

	return order, nil
}

// ListByUser returns the user's orders most-recent-first: one query for the
// headers, one batched query for all their lines.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.Lines = []domain.OrderLine{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order rows: %w", err)
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	lineRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, product_id, product_name, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer func() { _ = lineRows.Close() }()

	for lineRows.Next() {
		var orderID string
		var line domain.OrderLine
		if err := lineRows.Scan(&orderID, &line.ID, &line.ProductID, &line.ProductName, &line.Price, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order := orderMap[orderID]
		order.Lines = append(order.Lines, line)
	}

	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("order item rows: %w", err)
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// UpdateStatus transitions an order out of pending. Non-pending orders are
// immutable except through this guarded path, so a second transition is a
// no-op and returns false.
func (r *Repository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, status, orderID, domain.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}

	return affected > 0, nil
}

// InsertAttempt claims an idempotency key; ON CONFLICT DO NOTHING makes the
// first inserter the winner across all server processes.
func (r *Repository) InsertAttempt(ctx context.Context, key, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO checkout_attempts (idempotency_key, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, userID, checkout.AttemptInProgress)
	if err != nil {
		return false, fmt.Errorf("insert checkout attempt: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert checkout attempt: %w", err)
	}

	return affected > 0, nil
}

func (r *Repository) GetAttempt(ctx context.Context, key string) (*checkout.Attempt, error) {
	attempt := &checkout.Attempt{}
	var orderID sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT idempotency_key, user_id, order_id, status, updated_at
		FROM checkout_attempts
		WHERE idempotency_key = $1
	`, key).Scan(&attempt.Key, &attempt.UserID, &orderID, &attempt.Status, &attempt.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select checkout attempt: %w", err)
	}

	attempt.OrderID = orderID.String
	return attempt, nil
}

// ReclaimAttempt takes over an abandoned in_progress attempt. The
// conditional update succeeds for at most one of any number of concurrent
// retriers.
func (r *Repository) ReclaimAttempt(ctx context.Context, key string, staleBefore time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE checkout_attempts SET updated_at = NOW()
		WHERE idempotency_key = $1 AND status = $2 AND updated_at < $3
	`, key, checkout.AttemptInProgress, staleBefore)
	if err != nil {
		return false, fmt.Errorf("reclaim checkout attempt: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaim checkout attempt: %w", err)
	}

	return affected > 0, nil
}

func (r *Repository) CompleteAttempt(ctx context.Context, key, orderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE checkout_attempts SET order_id = $1, status = $2, updated_at = NOW()
		WHERE idempotency_key = $3
	`, orderID, checkout.AttemptCompleted, key)
	if err != nil {
		return fmt.Errorf("complete checkout attempt: %w", err)
	}
	return nil
}

func (r *Repository) DeleteAttempt(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM checkout_attempts WHERE idempotency_key = $1`, key); err != nil {
		return fmt.Errorf("delete checkout attempt: %w", err)
	}
	return nil
}

// RevenueDay is one row of the daily revenue report.
type RevenueDay struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
}

// DailyRevenue sums completed orders per day over the trailing week.
func (r *Repository) DailyRevenue(ctx context.Context) ([]RevenueDay, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(created_at::date, 'YYYY-MM-DD'), SUM(total_amount)
		FROM orders
		WHERE status = $1 AND created_at >= NOW() - INTERVAL '7 days'
		GROUP BY created_at::date
		ORDER BY created_at::date DESC
	`, domain.OrderStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("select daily revenue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	days := []RevenueDay{}
	for rows.Next() {
		var day RevenueDay
		if err := rows.Scan(&day.Date, &day.Revenue); err != nil {
			return nil, fmt.Errorf("scan revenue row: %w", err)
		}
		days = append(days, day)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revenue rows: %w", err)
	}

	return days, nil
}
