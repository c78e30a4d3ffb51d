package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// Store is the Postgres backend
type Store struct {
	queries
	db          *sqlx.DB
	lockTimeout time.Duration
}

// queries implements Repository over a connection or a transaction
type queries struct {
	q sqlx.ExtContext
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpenConns int, lockTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStoreFromDB(db, lockTimeout), nil
}

// NewStoreFromDB wraps an existing connection pool
func NewStoreFromDB(db *sqlx.DB, lockTimeout time.Duration) *Store {
	return &Store{queries: queries{q: db}, db: db, lockTimeout: lockTimeout}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction whose row-lock waits are bounded by the lock timeout
func (s *Store) WithTx(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return mapError(err)
		}
	}

	if err := fn(ctx, &queries{q: tx}); err != nil {
		return mapError(err)
	}

	return mapError(tx.Commit())
}

// View runs fn directly on the pool
func (s *Store) View(ctx context.Context, fn TxFunc) error {
	return mapError(fn(ctx, &s.queries))
}

// mapError translates driver errors into domain errors; domain errors pass through
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case "55P03": // lock_not_available
		return fmt.Errorf("%w: %s", models.ErrBusy, pqErr.Message)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %s", models.ErrConflict, pqErr.Message)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %s", models.ErrReferentialConflict, pqErr.Message)
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s", models.ErrConflict, pqErr.Message)
	case "23514": // check_violation
		return fmt.Errorf("%w: %s", models.ErrValidation, pqErr.Message)
	}
	return err
}

// CreateProduct inserts a product
func (r *queries) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (name, category_id, brand_name, description, cost_price, sell_price, stock_quantity, is_draft, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &p.ID, query,
		p.Name, p.CategoryID, p.BrandName, p.Description, p.CostPrice, p.SellPrice, p.StockQuantity, p.IsDraft, p.CreatedAt))
}

// GetProduct retrieves a product by ID
func (r *queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, r.q, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", id, mapError(err))
	}
	return &product, nil
}

// ListProducts retrieves all products
func (r *queries) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := sqlx.SelectContext(ctx, r.q, &products, "SELECT * FROM products ORDER BY id")
	return products, mapError(err)
}

// UpdateProductPrices changes prices for future lines only
func (r *queries) UpdateProductPrices(ctx context.Context, id int64, cost, sell decimal.Decimal, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE products SET cost_price = $1, sell_price = $2, updated_at = $3 WHERE id = $4",
		cost, sell, at, id)
	return requireRow(res, err, "product", id)
}

// DeleteProduct deletes a product with no order lines
func (r *queries) DeleteProduct(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	return requireRow(res, err, "product", id)
}

// DecrementStock is a conditional decrement; the row lock is held only for this product
func (r *queries) DecrementStock(ctx context.Context, id int64, quantity int, at time.Time) (int, error) {
	var stock int
	err := sqlx.GetContext(ctx, r.q, &stock, `
		UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = $2
		WHERE id = $3 AND is_draft = FALSE AND stock_quantity >= $1
		RETURNING stock_quantity`,
		quantity, at, id)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapError(err)
	}

	var current struct {
		IsDraft       bool `db:"is_draft"`
		StockQuantity int  `db:"stock_quantity"`
	}
	err = sqlx.GetContext(ctx, r.q, &current,
		"SELECT is_draft, stock_quantity FROM products WHERE id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("product %d: %w", id, mapError(err))
	}
	if current.IsDraft {
		return 0, fmt.Errorf("%w: product %d is a draft", models.ErrInsufficientStock, id)
	}
	return 0, fmt.Errorf("%w: product %d available=%d, requested=%d",
		models.ErrInsufficientStock, id, current.StockQuantity, quantity)
}

// IncrementStock adds quantity back to stock
func (r *queries) IncrementStock(ctx context.Context, id int64, quantity int, at time.Time) (int, error) {
	var stock int
	err := sqlx.GetContext(ctx, r.q, &stock,
		"UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = $2 WHERE id = $3 RETURNING stock_quantity",
		quantity, at, id)
	if err != nil {
		return 0, fmt.Errorf("product %d: %w", id, mapError(err))
	}
	return stock, nil
}

// IsProductReferenced reports whether any order line points at the product
func (r *queries) IsProductReferenced(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.q, &exists,
		"SELECT EXISTS(SELECT 1 FROM order_details WHERE product_id = $1)", id)
	return exists, mapError(err)
}

func requireRow(res sql.Result, err error, entity string, id int64) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, models.ErrNotFound)
	}
	return nil
}

var _ Backend = (*Store)(nil)
var _ Repository = (*queries)(nil)
