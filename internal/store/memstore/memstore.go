// Package memstore is an in-memory store.Backend. Transactions are serialized
// by a single mutex and rolled back by restoring a snapshot, so it is meant for
// tests and local development rather than multi-instance deployments.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/shopspring/decimal"
)

type tables struct {
	seq          map[string]int64
	categories   map[int64]models.Category
	products     map[int64]models.Product
	customers    map[int64]models.Customer
	roles        map[int64]models.Role
	users        map[int64]models.User
	orders       map[int64]models.Order
	details      map[int64]models.OrderDetail
	reservations map[int64]models.Reservation
	payments     map[int64]models.Payment
	commissions  map[int64]models.Commission
	settings     map[string]models.AppSetting
	events       map[string]models.ProcessedEvent
}

func newTables() *tables {
	return &tables{
		seq:          make(map[string]int64),
		categories:   make(map[int64]models.Category),
		products:     make(map[int64]models.Product),
		customers:    make(map[int64]models.Customer),
		roles:        make(map[int64]models.Role),
		users:        make(map[int64]models.User),
		orders:       make(map[int64]models.Order),
		details:      make(map[int64]models.OrderDetail),
		reservations: make(map[int64]models.Reservation),
		payments:     make(map[int64]models.Payment),
		commissions:  make(map[int64]models.Commission),
		settings:     make(map[string]models.AppSetting),
		events:       make(map[string]models.ProcessedEvent),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t *tables) clone() *tables {
	return &tables{
		seq:          cloneMap(t.seq),
		categories:   cloneMap(t.categories),
		products:     cloneMap(t.products),
		customers:    cloneMap(t.customers),
		roles:        cloneMap(t.roles),
		users:        cloneMap(t.users),
		orders:       cloneMap(t.orders),
		details:      cloneMap(t.details),
		reservations: cloneMap(t.reservations),
		payments:     cloneMap(t.payments),
		commissions:  cloneMap(t.commissions),
		settings:     cloneMap(t.settings),
		events:       cloneMap(t.events),
	}
}

func (t *tables) next(table string) int64 {
	t.seq[table]++
	return t.seq[table]
}

// Store is an in-memory implementation of store.Backend
type Store struct {
	mu   sync.Mutex
	data *tables
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{data: newTables()}
}

// WithTx runs fn with exclusive access and discards its writes if it fails
func (s *Store) WithTx(ctx context.Context, fn store.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	if err := fn(ctx, &repo{t: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// View runs fn with exclusive access
func (s *Store) View(ctx context.Context, fn store.TxFunc) error {
	return s.WithTx(ctx, fn)
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

type repo struct {
	t *tables
}

func notFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, models.ErrNotFound)
}

func referenced(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrReferentialConflict, fmt.Sprintf(format, args...))
}

func sortedValues[V any](m map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// Products

func (r *repo) CreateProduct(_ context.Context, p *models.Product) error {
	if _, ok := r.t.categories[p.CategoryID]; !ok {
		return referenced("category %d does not exist", p.CategoryID)
	}
	if p.StockQuantity < 0 {
		return fmt.Errorf("%w: stock quantity cannot be negative", models.ErrValidation)
	}
	p.ID = r.t.next("products")
	r.t.products[p.ID] = *p
	return nil
}

func (r *repo) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	p, ok := r.t.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

func (r *repo) ListProducts(_ context.Context) ([]models.Product, error) {
	return sortedValues(r.t.products, nil), nil
}

func (r *repo) UpdateProductPrices(_ context.Context, id int64, cost, sell decimal.Decimal, at time.Time) error {
	p, ok := r.t.products[id]
	if !ok {
		return notFound("product", id)
	}
	p.CostPrice = cost
	p.SellPrice = sell
	p.UpdatedAt = &at
	r.t.products[id] = p
	return nil
}

func (r *repo) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := r.t.products[id]; !ok {
		return notFound("product", id)
	}
	if used, _ := r.IsProductReferenced(ctx, id); used {
		return referenced("product %d is referenced by order lines", id)
	}
	delete(r.t.products, id)
	return nil
}

func (r *repo) DecrementStock(_ context.Context, id int64, quantity int, at time.Time) (int, error) {
	p, ok := r.t.products[id]
	if !ok {
		return 0, notFound("product", id)
	}
	if p.IsDraft {
		return 0, fmt.Errorf("%w: product %d is a draft", models.ErrInsufficientStock, id)
	}
	if p.StockQuantity < quantity {
		return 0, fmt.Errorf("%w: product %d available=%d, requested=%d",
			models.ErrInsufficientStock, id, p.StockQuantity, quantity)
	}
	p.StockQuantity -= quantity
	p.UpdatedAt = &at
	r.t.products[id] = p
	return p.StockQuantity, nil
}

func (r *repo) IncrementStock(_ context.Context, id int64, quantity int, at time.Time) (int, error) {
	p, ok := r.t.products[id]
	if !ok {
		return 0, notFound("product", id)
	}
	p.StockQuantity += quantity
	p.UpdatedAt = &at
	r.t.products[id] = p
	return p.StockQuantity, nil
}

func (r *repo) IsProductReferenced(_ context.Context, id int64) (bool, error) {
	for _, d := range r.t.details {
		if d.ProductID == id {
			return true, nil
		}
	}
	return false, nil
}

// Categories

func (r *repo) CreateCategory(_ context.Context, c *models.Category) error {
	c.ID = r.t.next("categories")
	r.t.categories[c.ID] = *c
	return nil
}

func (r *repo) GetCategory(_ context.Context, id int64) (*models.Category, error) {
	c, ok := r.t.categories[id]
	if !ok {
		return nil, notFound("category", id)
	}
	return &c, nil
}

func (r *repo) DeleteCategory(ctx context.Context, id int64) error {
	if _, ok := r.t.categories[id]; !ok {
		return notFound("category", id)
	}
	if n, _ := r.CountProductsInCategory(ctx, id); n > 0 {
		return referenced("category %d has %d products", id, n)
	}
	delete(r.t.categories, id)
	return nil
}

func (r *repo) CountProductsInCategory(_ context.Context, id int64) (int, error) {
	n := 0
	for _, p := range r.t.products {
		if p.CategoryID == id {
			n++
		}
	}
	return n, nil
}

// Customers

func (r *repo) CreateCustomer(_ context.Context, c *models.Customer) error {
	c.ID = r.t.next("customers")
	r.t.customers[c.ID] = *c
	return nil
}

func (r *repo) GetCustomer(_ context.Context, id int64) (*models.Customer, error) {
	c, ok := r.t.customers[id]
	if !ok {
		return nil, notFound("customer", id)
	}
	return &c, nil
}

func (r *repo) AddCustomerPurchases(_ context.Context, id int64, delta decimal.Decimal) error {
	c, ok := r.t.customers[id]
	if !ok {
		return notFound("customer", id)
	}
	c.TotalPurchased = decimal.Max(c.TotalPurchased.Add(delta), decimal.Zero)
	r.t.customers[id] = c
	return nil
}

// Roles

func (r *repo) CreateRole(_ context.Context, role *models.Role) error {
	role.ID = r.t.next("roles")
	r.t.roles[role.ID] = *role
	return nil
}

func (r *repo) GetRole(_ context.Context, id int64) (*models.Role, error) {
	role, ok := r.t.roles[id]
	if !ok {
		return nil, notFound("role", id)
	}
	return &role, nil
}

func (r *repo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.t.roles[id]; !ok {
		return notFound("role", id)
	}
	if n, _ := r.CountUsersInRole(ctx, id); n > 0 {
		return referenced("role %d has %d users", id, n)
	}
	delete(r.t.roles, id)
	return nil
}

func (r *repo) CountUsersInRole(_ context.Context, id int64) (int, error) {
	n := 0
	for _, u := range r.t.users {
		if u.RoleID == id {
			n++
		}
	}
	return n, nil
}

// Users

func (r *repo) CreateUser(_ context.Context, u *models.User) error {
	if _, ok := r.t.roles[u.RoleID]; !ok {
		return referenced("role %d does not exist", u.RoleID)
	}
	for _, existing := range r.t.users {
		if existing.Username == u.Username {
			return fmt.Errorf("%w: username %q is taken", models.ErrConflict, u.Username)
		}
	}
	u.ID = r.t.next("users")
	r.t.users[u.ID] = *u
	return nil
}

func (r *repo) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := r.t.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (r *repo) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range r.t.users {
		if u.Username == username {
			found := u
			return &found, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, models.ErrNotFound)
}

func (r *repo) SetUserActive(_ context.Context, id int64, active bool) error {
	u, ok := r.t.users[id]
	if !ok {
		return notFound("user", id)
	}
	u.IsActive = active
	r.t.users[id] = u
	return nil
}

func (r *repo) ListUserIDs(_ context.Context) ([]int64, error) {
	users := sortedValues(r.t.users, nil)
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

// Orders

func (r *repo) CreateOrder(_ context.Context, o *models.Order) error {
	if _, ok := r.t.users[o.UserID]; !ok {
		return referenced("user %d does not exist", o.UserID)
	}
	if o.CustomerID != nil {
		if _, ok := r.t.customers[*o.CustomerID]; !ok {
			return referenced("customer %d does not exist", *o.CustomerID)
		}
	}
	if o.IdempotencyKey != nil {
		for _, existing := range r.t.orders {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *o.IdempotencyKey {
				return fmt.Errorf("%w: idempotency key %q already used", models.ErrConflict, *o.IdempotencyKey)
			}
		}
	}
	o.ID = r.t.next("orders")
	r.t.orders[o.ID] = *o
	return nil
}

func (r *repo) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	o, ok := r.t.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	return &o, nil
}

// LockOrder is GetOrder; the transaction already holds the store lock.
func (r *repo) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *repo) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	for _, o := range r.t.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			found := o
			return &found, nil
		}
	}
	return nil, nil
}

func (r *repo) UpdateOrder(_ context.Context, o *models.Order) error {
	current, ok := r.t.orders[o.ID]
	if !ok {
		return notFound("order", o.ID)
	}
	if o.Discount.GreaterThan(o.Subtotal) || o.TotalAmount.IsNegative() {
		return fmt.Errorf("%w: order %d totals out of range", models.ErrValidation, o.ID)
	}
	current.Status = o.Status
	current.Subtotal = o.Subtotal
	current.Discount = o.Discount
	current.TotalAmount = o.TotalAmount
	current.Notes = o.Notes
	current.UpdatedAt = o.UpdatedAt
	r.t.orders[o.ID] = current
	return nil
}

func (r *repo) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := r.t.orders[id]; !ok {
		return notFound("order", id)
	}
	delete(r.t.orders, id)
	for rid, res := range r.t.reservations {
		if res.OrderID == id {
			delete(r.t.reservations, rid)
		}
	}
	for did, d := range r.t.details {
		if d.OrderID == id {
			delete(r.t.details, did)
		}
	}
	for pid, p := range r.t.payments {
		if p.OrderID == id {
			delete(r.t.payments, pid)
		}
	}
	return nil
}

func (r *repo) SumCompletedSales(_ context.Context, userID int64, from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, o := range r.t.orders {
		if o.UserID != userID || o.Status != models.OrderStatusCompleted {
			continue
		}
		if o.OrderDate.Before(from) || !o.OrderDate.Before(to) {
			continue
		}
		total = total.Add(o.TotalAmount)
	}
	return total, nil
}

// Order lines

func (r *repo) CreateOrderDetail(_ context.Context, d *models.OrderDetail) error {
	if _, ok := r.t.orders[d.OrderID]; !ok {
		return referenced("order %d does not exist", d.OrderID)
	}
	if _, ok := r.t.products[d.ProductID]; !ok {
		return referenced("product %d does not exist", d.ProductID)
	}
	if d.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", models.ErrValidation)
	}
	d.ID = r.t.next("order_details")
	r.t.details[d.ID] = *d
	return nil
}

func (r *repo) ListOrderDetails(_ context.Context, orderID int64) ([]models.OrderDetail, error) {
	return sortedValues(r.t.details, func(d models.OrderDetail) bool { return d.OrderID == orderID }), nil
}

// Reservations

func (r *repo) CreateReservation(_ context.Context, res *models.Reservation) error {
	if _, ok := r.t.orders[res.OrderID]; !ok {
		return referenced("order %d does not exist", res.OrderID)
	}
	if _, ok := r.t.details[res.OrderDetailID]; !ok {
		return referenced("order detail %d does not exist", res.OrderDetailID)
	}
	res.ID = r.t.next("reservations")
	r.t.reservations[res.ID] = *res
	return nil
}

func (r *repo) GetReservation(_ context.Context, id int64) (*models.Reservation, error) {
	res, ok := r.t.reservations[id]
	if !ok {
		return nil, notFound("reservation", id)
	}
	return &res, nil
}

func (r *repo) TransitionReservation(_ context.Context, id int64, from, to models.ReservationState, at time.Time) error {
	res, ok := r.t.reservations[id]
	if !ok {
		return notFound("reservation", id)
	}
	if res.State != from {
		return fmt.Errorf("%w: reservation %d is %s", models.ErrInvalidState, id, res.State)
	}
	res.State = to
	res.UpdatedAt = at
	r.t.reservations[id] = res
	return nil
}

func (r *repo) ListReservations(_ context.Context, orderID int64) ([]models.Reservation, error) {
	return sortedValues(r.t.reservations, func(res models.Reservation) bool { return res.OrderID == orderID }), nil
}

// Payments

func (r *repo) CreatePayment(_ context.Context, p *models.Payment) error {
	if _, ok := r.t.orders[p.OrderID]; !ok {
		return referenced("order %d does not exist", p.OrderID)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", models.ErrValidation)
	}
	p.ID = r.t.next("payments")
	r.t.payments[p.ID] = *p
	return nil
}

func (r *repo) ListPayments(_ context.Context, orderID int64) ([]models.Payment, error) {
	return sortedValues(r.t.payments, func(p models.Payment) bool { return p.OrderID == orderID }), nil
}

// Commissions

func (r *repo) UpsertCommission(_ context.Context, c *models.Commission) error {
	if _, ok := r.t.users[c.UserID]; !ok {
		return referenced("user %d does not exist", c.UserID)
	}
	for id, existing := range r.t.commissions {
		if existing.UserID == c.UserID && existing.Month == c.Month && existing.Year == c.Year {
			c.ID = id
			r.t.commissions[id] = *c
			return nil
		}
	}
	c.ID = r.t.next("commissions")
	r.t.commissions[c.ID] = *c
	return nil
}

func (r *repo) GetCommission(_ context.Context, userID int64, month, year int) (*models.Commission, error) {
	for _, c := range r.t.commissions {
		if c.UserID == userID && c.Month == month && c.Year == year {
			found := c
			return &found, nil
		}
	}
	return nil, fmt.Errorf("commission %d/%d-%02d: %w", userID, year, month, models.ErrNotFound)
}

// Settings

func (r *repo) GetSetting(_ context.Context, key string) (*models.AppSetting, error) {
	s, ok := r.t.settings[key]
	if !ok {
		return nil, fmt.Errorf("setting %q: %w", key, models.ErrNotFound)
	}
	return &s, nil
}

func (r *repo) ListSettings(_ context.Context) ([]models.AppSetting, error) {
	out := make([]models.AppSetting, 0, len(r.t.settings))
	for _, s := range r.t.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := deref(out[i].Category), deref(out[j].Category)
		if ci != cj {
			return ci < cj
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (r *repo) UpsertSetting(_ context.Context, s *models.AppSetting) error {
	if existing, ok := r.t.settings[s.Key]; ok {
		s.ID = existing.ID
	} else {
		s.ID = r.t.next("app_settings")
	}
	r.t.settings[s.Key] = *s
	return nil
}

func (r *repo) DeleteSetting(_ context.Context, key string) error {
	if _, ok := r.t.settings[key]; !ok {
		return fmt.Errorf("setting %q: %w", key, models.ErrNotFound)
	}
	delete(r.t.settings, key)
	return nil
}

// Events

func (r *repo) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := r.t.events[eventID]
	return ok, nil
}

func (r *repo) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	if _, ok := r.t.events[eventID]; ok {
		return nil
	}
	r.t.events[eventID] = models.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now().UTC(),
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ store.Backend = (*Store)(nil)
var _ store.Repository = (*repo)(nil)
