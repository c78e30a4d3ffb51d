package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products in the catalog
type Category struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
}

// Product represents a sellable item with its live stock count
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	CategoryID    int64           `db:"category_id" json:"category_id"`
	BrandName     string          `db:"brand_name" json:"brand_name"`
	Description   *string         `db:"description" json:"description,omitempty"`
	CostPrice     decimal.Decimal `db:"cost_price" json:"cost_price"`
	SellPrice     decimal.Decimal `db:"sell_price" json:"sell_price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	IsDraft       bool            `db:"is_draft" json:"is_draft"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// Customer represents a registered buyer
type Customer struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	PhoneNumber    string          `db:"phone_number" json:"phone_number"`
	Email          *string         `db:"email" json:"email,omitempty"`
	Address        *string         `db:"address" json:"address,omitempty"`
	Type           CustomerType    `db:"type" json:"type"`
	TotalPurchased decimal.Decimal `db:"total_purchased" json:"total_purchased"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Role groups users by permission level
type Role struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
}

// User is an employee operating a terminal
type User struct {
	ID           int64  `db:"id" json:"id"`
	FullName     string `db:"full_name" json:"full_name"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	RoleID       int64  `db:"role_id" json:"role_id"`
	IsActive     bool   `db:"is_active" json:"is_active"`
	HasSeenGuide bool   `db:"has_seen_guide" json:"has_seen_guide"`
}

// Order represents a sale, walk-in when CustomerID is nil
type Order struct {
	ID             int64           `db:"id" json:"id"`
	CustomerID     *int64          `db:"customer_id" json:"customer_id,omitempty"`
	UserID         int64           `db:"user_id" json:"user_id"`
	OrderDate      time.Time       `db:"order_date" json:"order_date"`
	Status         OrderStatus     `db:"status" json:"status"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderDetail is a line item; UnitPrice and CostPrice are a PricingSnapshot
type OrderDetail struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	CostPrice decimal.Decimal `db:"cost_price" json:"cost_price"`
}

// Subtotal is quantity × unit price. It is never stored.
func (d OrderDetail) Subtotal() decimal.Decimal {
	return d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// Reservation is a stock decrement tied to an order line
type Reservation struct {
	ID            int64            `db:"id" json:"id"`
	OrderID       int64            `db:"order_id" json:"order_id"`
	OrderDetailID int64            `db:"order_detail_id" json:"order_detail_id"`
	ProductID     int64            `db:"product_id" json:"product_id"`
	Quantity      int              `db:"quantity" json:"quantity"`
	State         ReservationState `db:"state" json:"state"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// Payment is an immutable money receipt against an order
type Payment struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	Method      PaymentMethod   `db:"method" json:"method"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate time.Time       `db:"payment_date" json:"payment_date"`
}

// Commission is the per-user, per-period sales commission
type Commission struct {
	ID               int64           `db:"id" json:"id"`
	UserID           int64           `db:"user_id" json:"user_id"`
	Month            int             `db:"month" json:"month"`
	Year             int             `db:"year" json:"year"`
	TotalSales       decimal.Decimal `db:"total_sales" json:"total_sales"`
	CommissionRate   decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	CommissionAmount decimal.Decimal `db:"commission_amount" json:"commission_amount"`
}

// AppSetting is a string-encoded configuration value
type AppSetting struct {
	ID          int64       `db:"id" json:"id"`
	Key         string      `db:"key" json:"key"`
	Value       *string     `db:"value" json:"value,omitempty"`
	ValueType   SettingType `db:"value_type" json:"value_type"`
	Category    *string     `db:"category" json:"category,omitempty"`
	Description *string     `db:"description" json:"description,omitempty"`
	IsSystem    bool        `db:"is_system" json:"is_system"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// OrderView is an order together with everything it owns
type OrderView struct {
	Order        *Order        `json:"order"`
	Details      []OrderDetail `json:"details"`
	Payments     []Payment     `json:"payments"`
	Reservations []Reservation `json:"reservations"`
}

// Paid sums the payments in the view.
func (v *OrderView) Paid() decimal.Decimal {
	return SumPayments(v.Payments)
}

// SumPayments adds up payment amounts.
func SumPayments(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
