package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CreateOrder creates a new order
func (r *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, user_id, order_date, status, subtotal, discount, total_amount, notes, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &order.ID, query,
		order.CustomerID, order.UserID, order.OrderDate, order.Status, order.Subtotal, order.Discount,
		order.TotalAmount, order.Notes, order.IdempotencyKey, order.CreatedAt, order.UpdatedAt))
}

// GetOrder retrieves an order by ID
func (r *queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, r.q, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, mapError(err))
	}
	return &order, nil
}

// LockOrder retrieves an order and locks its row
func (r *queries) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, r.q, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, mapError(err))
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (r *queries) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, r.q, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &order, nil
}

// UpdateOrder writes status and totals
func (r *queries) UpdateOrder(ctx context.Context, order *models.Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, subtotal = $2, discount = $3, total_amount = $4, notes = $5, updated_at = $6
		WHERE id = $7`,
		order.Status, order.Subtotal, order.Discount, order.TotalAmount, order.Notes, order.UpdatedAt, order.ID)
	return requireRow(res, err, "order", order.ID)
}

// DeleteOrder deletes an order; details, reservations and payments cascade
func (r *queries) DeleteOrder(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	return requireRow(res, err, "order", id)
}

// SumCompletedSales totals completed orders of a user placed in [from, to)
func (r *queries) SumCompletedSales(ctx context.Context, userID int64, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, r.q, &total, `
		SELECT COALESCE(SUM(total_amount), 0) FROM orders
		WHERE user_id = $1 AND status = $2 AND order_date >= $3 AND order_date < $4`,
		userID, models.OrderStatusCompleted, from, to)
	return total, mapError(err)
}

// CreateOrderDetail creates a new order line
func (r *queries) CreateOrderDetail(ctx context.Context, d *models.OrderDetail) error {
	query := `
		INSERT INTO order_details (order_id, product_id, quantity, unit_price, cost_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &d.ID, query,
		d.OrderID, d.ProductID, d.Quantity, d.UnitPrice, d.CostPrice))
}

// ListOrderDetails retrieves all lines for an order
func (r *queries) ListOrderDetails(ctx context.Context, orderID int64) ([]models.OrderDetail, error) {
	var details []models.OrderDetail
	err := sqlx.SelectContext(ctx, r.q, &details,
		"SELECT * FROM order_details WHERE order_id = $1 ORDER BY id", orderID)
	return details, mapError(err)
}

// CreateReservation records a stock reservation
func (r *queries) CreateReservation(ctx context.Context, res *models.Reservation) error {
	query := `
		INSERT INTO reservations (order_id, order_detail_id, product_id, quantity, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &res.ID, query,
		res.OrderID, res.OrderDetailID, res.ProductID, res.Quantity, res.State, res.CreatedAt, res.UpdatedAt))
}

// GetReservation retrieves a reservation by ID
func (r *queries) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	var res models.Reservation
	err := sqlx.GetContext(ctx, r.q, &res, "SELECT * FROM reservations WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", id, mapError(err))
	}
	return &res, nil
}

// TransitionReservation is a compare-and-set on the reservation state
func (r *queries) TransitionReservation(ctx context.Context, id int64, from, to models.ReservationState, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE reservations SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4",
		to, at, id, from)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	current, err := r.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: reservation %d is %s", models.ErrInvalidState, id, current.State)
}

// ListReservations retrieves all reservations for an order
func (r *queries) ListReservations(ctx context.Context, orderID int64) ([]models.Reservation, error) {
	var out []models.Reservation
	err := sqlx.SelectContext(ctx, r.q, &out,
		"SELECT * FROM reservations WHERE order_id = $1 ORDER BY id", orderID)
	return out, mapError(err)
}

// CreatePayment creates a new payment record
func (r *queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, method, amount, payment_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &payment.ID, query,
		payment.OrderID, payment.Method, payment.Amount, payment.PaymentDate))
}

// ListPayments retrieves payments for an order
func (r *queries) ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := sqlx.SelectContext(ctx, r.q, &payments,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY id", orderID)
	return payments, mapError(err)
}

// IsEventProcessed checks if an event has been processed
func (r *queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.q, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, mapError(err)
}

// MarkEventProcessed marks an event as processed
func (r *queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return mapError(err)
}
