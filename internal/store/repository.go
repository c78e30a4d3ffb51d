package store

import (
	"context"
	"time"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

// ProductRepository persists products and their stock counts.
type ProductRepository interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpdateProductPrices(ctx context.Context, id int64, cost, sell decimal.Decimal, at time.Time) error
	DeleteProduct(ctx context.Context, id int64) error
	// DecrementStock subtracts quantity only if the product is not a draft and
	// has at least quantity in stock. It returns the new stock level.
	DecrementStock(ctx context.Context, id int64, quantity int, at time.Time) (int, error)
	IncrementStock(ctx context.Context, id int64, quantity int, at time.Time) (int, error)
	IsProductReferenced(ctx context.Context, id int64) (bool, error)
}

// CategoryRepository persists categories.
type CategoryRepository interface {
	CreateCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	CountProductsInCategory(ctx context.Context, id int64) (int, error)
}

// CustomerRepository persists customers.
type CustomerRepository interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	// AddCustomerPurchases adjusts total_purchased by delta, never below zero.
	AddCustomerPurchases(ctx context.Context, id int64, delta decimal.Decimal) error
}

// RoleRepository persists roles.
type RoleRepository interface {
	CreateRole(ctx context.Context, r *models.Role) error
	GetRole(ctx context.Context, id int64) (*models.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CountUsersInRole(ctx context.Context, id int64) (int, error)
}

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// OrderRepository persists orders and everything they own.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	// LockOrder reads the order and holds its row lock until the transaction ends.
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	UpdateOrder(ctx context.Context, o *models.Order) error
	DeleteOrder(ctx context.Context, id int64) error
	SumCompletedSales(ctx context.Context, userID int64, from, to time.Time) (decimal.Decimal, error)

	CreateOrderDetail(ctx context.Context, d *models.OrderDetail) error
	ListOrderDetails(ctx context.Context, orderID int64) ([]models.OrderDetail, error)

	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	// TransitionReservation moves a reservation from one state to another and
	// fails with ErrInvalidState when it is not currently in from.
	TransitionReservation(ctx context.Context, id int64, from, to models.ReservationState, at time.Time) error
	ListReservations(ctx context.Context, orderID int64) ([]models.Reservation, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error)
}

// CommissionRepository persists commissions.
type CommissionRepository interface {
	// UpsertCommission inserts or overwrites the row for (user, month, year).
	UpsertCommission(ctx context.Context, c *models.Commission) error
	GetCommission(ctx context.Context, userID int64, month, year int) (*models.Commission, error)
}

// SettingRepository persists application settings.
type SettingRepository interface {
	GetSetting(ctx context.Context, key string) (*models.AppSetting, error)
	ListSettings(ctx context.Context) ([]models.AppSetting, error)
	UpsertSetting(ctx context.Context, s *models.AppSetting) error
	DeleteSetting(ctx context.Context, key string) error
}

// EventRepository records consumed events for idempotent handlers.
type EventRepository interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is every table, scoped to a transaction or connection.
type Repository interface {
	ProductRepository
	CategoryRepository
	CustomerRepository
	RoleRepository
	UserRepository
	OrderRepository
	CommissionRepository
	SettingRepository
	EventRepository
}

// TxFunc runs against a Repository bound to one transaction.
type TxFunc func(ctx context.Context, repo Repository) error

// Backend runs units of work against persistent storage.
type Backend interface {
	// WithTx commits if fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn TxFunc) error
	// View runs read-only work outside an explicit transaction.
	View(ctx context.Context, fn TxFunc) error
	Close() error
}
