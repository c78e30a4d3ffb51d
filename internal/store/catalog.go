package store

import (
	"context"
	"fmt"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CreateCategory inserts a category
func (r *queries) CreateCategory(ctx context.Context, c *models.Category) error {
	return mapError(sqlx.GetContext(ctx, r.q, &c.ID,
		"INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id",
		c.Name, c.Description))
}

// GetCategory retrieves a category by ID
func (r *queries) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	if err := sqlx.GetContext(ctx, r.q, &c, "SELECT * FROM categories WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("category %d: %w", id, mapError(err))
	}
	return &c, nil
}

// DeleteCategory deletes an empty category
func (r *queries) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	return requireRow(res, err, "category", id)
}

// CountProductsInCategory counts products referencing the category
func (r *queries) CountProductsInCategory(ctx context.Context, id int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, "SELECT COUNT(*) FROM products WHERE category_id = $1", id)
	return n, mapError(err)
}

// CreateCustomer inserts a customer
func (r *queries) CreateCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (name, phone_number, email, address, type, total_purchased, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &c.ID, query,
		c.Name, c.PhoneNumber, c.Email, c.Address, c.Type, c.TotalPurchased, c.CreatedAt))
}

// GetCustomer retrieves a customer by ID
func (r *queries) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	if err := sqlx.GetContext(ctx, r.q, &c, "SELECT * FROM customers WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, mapError(err))
	}
	return &c, nil
}

// AddCustomerPurchases adjusts the purchase accumulator, flooring at zero
func (r *queries) AddCustomerPurchases(ctx context.Context, id int64, delta decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE customers SET total_purchased = GREATEST(total_purchased + $1, 0) WHERE id = $2",
		delta, id)
	return requireRow(res, err, "customer", id)
}

// CreateRole inserts a role
func (r *queries) CreateRole(ctx context.Context, role *models.Role) error {
	return mapError(sqlx.GetContext(ctx, r.q, &role.ID,
		"INSERT INTO roles (name, description) VALUES ($1, $2) RETURNING id",
		role.Name, role.Description))
}

// GetRole retrieves a role by ID
func (r *queries) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	var role models.Role
	if err := sqlx.GetContext(ctx, r.q, &role, "SELECT * FROM roles WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("role %d: %w", id, mapError(err))
	}
	return &role, nil
}

// DeleteRole deletes a role without users
func (r *queries) DeleteRole(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM roles WHERE id = $1", id)
	return requireRow(res, err, "role", id)
}

// CountUsersInRole counts users assigned to the role
func (r *queries) CountUsersInRole(ctx context.Context, id int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, "SELECT COUNT(*) FROM users WHERE role_id = $1", id)
	return n, mapError(err)
}

// CreateUser inserts a user; a duplicate username is a conflict
func (r *queries) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (full_name, username, password_hash, role_id, is_active, has_seen_guide)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &u.ID, query,
		u.FullName, u.Username, u.PasswordHash, u.RoleID, u.IsActive, u.HasSeenGuide))
}

// GetUser retrieves a user by ID
func (r *queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := sqlx.GetContext(ctx, r.q, &u, "SELECT * FROM users WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("user %d: %w", id, mapError(err))
	}
	return &u, nil
}

// GetUserByUsername retrieves a user by username
func (r *queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := sqlx.GetContext(ctx, r.q, &u, "SELECT * FROM users WHERE username = $1", username); err != nil {
		return nil, fmt.Errorf("user %q: %w", username, mapError(err))
	}
	return &u, nil
}

// SetUserActive toggles the active flag
func (r *queries) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := r.q.ExecContext(ctx, "UPDATE users SET is_active = $1 WHERE id = $2", active, id)
	return requireRow(res, err, "user", id)
}

// ListUserIDs returns every user id in ascending order
func (r *queries) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.q, &ids, "SELECT id FROM users ORDER BY id")
	return ids, mapError(err)
}

// UpsertCommission writes the single row for (user, month, year)
func (r *queries) UpsertCommission(ctx context.Context, c *models.Commission) error {
	query := `
		INSERT INTO commissions (user_id, month, year, total_sales, commission_rate, commission_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, month, year) DO UPDATE
		SET total_sales = EXCLUDED.total_sales,
		    commission_rate = EXCLUDED.commission_rate,
		    commission_amount = EXCLUDED.commission_amount
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &c.ID, query,
		c.UserID, c.Month, c.Year, c.TotalSales, c.CommissionRate, c.CommissionAmount))
}

// GetCommission retrieves the commission for a user and period
func (r *queries) GetCommission(ctx context.Context, userID int64, month, year int) (*models.Commission, error) {
	var c models.Commission
	err := sqlx.GetContext(ctx, r.q, &c,
		"SELECT * FROM commissions WHERE user_id = $1 AND month = $2 AND year = $3",
		userID, month, year)
	if err != nil {
		return nil, fmt.Errorf("commission %d/%d-%02d: %w", userID, year, month, mapError(err))
	}
	return &c, nil
}

// GetSetting retrieves a setting by key
func (r *queries) GetSetting(ctx context.Context, key string) (*models.AppSetting, error) {
	var s models.AppSetting
	if err := sqlx.GetContext(ctx, r.q, &s, "SELECT * FROM app_settings WHERE key = $1", key); err != nil {
		return nil, fmt.Errorf("setting %q: %w", key, mapError(err))
	}
	return &s, nil
}

// ListSettings retrieves all settings ordered by category and key
func (r *queries) ListSettings(ctx context.Context) ([]models.AppSetting, error) {
	var out []models.AppSetting
	err := sqlx.SelectContext(ctx, r.q, &out, "SELECT * FROM app_settings ORDER BY category, key")
	return out, mapError(err)
}

// UpsertSetting inserts or replaces a setting by key
func (r *queries) UpsertSetting(ctx context.Context, s *models.AppSetting) error {
	query := `
		INSERT INTO app_settings (key, value, value_type, category, description, is_system, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    value_type = EXCLUDED.value_type,
		    category = EXCLUDED.category,
		    description = EXCLUDED.description,
		    is_system = EXCLUDED.is_system,
		    updated_at = EXCLUDED.updated_at
		RETURNING id`

	return mapError(sqlx.GetContext(ctx, r.q, &s.ID, query,
		s.Key, s.Value, s.ValueType, s.Category, s.Description, s.IsSystem, s.UpdatedAt))
}

// DeleteSetting deletes a setting by key
func (r *queries) DeleteSetting(ctx context.Context, key string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM app_settings WHERE key = $1", key)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("setting %q: %w", key, models.ErrNotFound)
	}
	return nil
}
