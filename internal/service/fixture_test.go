package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pos-service/internal/lock"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu          sync.Mutex
	created     []*models.OrderCreatedEvent
	completed   []*models.OrderCompletedEvent
	cancelled   []*models.OrderCancelledEvent
	returned    []*models.OrderReturnedEvent
	commissions []*models.CommissionComputedEvent
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishOrderCompleted(_ context.Context, e *models.OrderCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return nil
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return nil
}

func (p *recordingPublisher) PublishOrderReturned(_ context.Context, e *models.OrderReturnedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.returned = append(p.returned, e)
	return nil
}

func (p *recordingPublisher) PublishCommissionComputed(_ context.Context, e *models.CommissionComputedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commissions = append(p.commissions, e)
	return nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	backend     *memstore.Store
	locker      *lock.KeyedMutex
	clock       *testClock
	events      *recordingPublisher
	inventory   *InventoryLedger
	orders      *OrderService
	catalog     *CatalogService
	commissions *CommissionCalculator

	roleID     int64
	userID     int64
	customerID int64
	categoryID int64
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLockTimeout(t, 5*time.Second)
}

func newFixtureWithLockTimeout(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()

	f := &fixture{
		backend: memstore.New(),
		locker:  lock.NewKeyedMutex(timeout),
		clock:   &testClock{t: time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)},
		events:  &recordingPublisher{},
	}
	now := Clock(f.clock.Now)

	f.inventory = NewInventoryLedger(f.backend, nil, time.Minute, now)
	f.orders = NewOrderService(f.backend, f.locker, f.inventory, NewPaymentLedger(now), f.events, now)
	f.catalog = NewCatalogService(f.backend, f.inventory, now)
	f.commissions = NewCommissionCalculator(f.backend, f.locker, f.events, 4, now)

	ctx := context.Background()
	role, err := f.catalog.CreateRole(ctx, "Cashier", nil)
	require.NoError(t, err)
	f.roleID = role.ID

	user, err := f.catalog.CreateUser(ctx, "Ana Cashier", "ana", "secret", role.ID)
	require.NoError(t, err)
	f.userID = user.ID

	customer, err := f.catalog.CreateCustomer(ctx, models.CustomerParams{Name: "Walk Buyer", PhoneNumber: "+1 555 0100"})
	require.NoError(t, err)
	f.customerID = customer.ID

	category, err := f.catalog.CreateCategory(ctx, "Laptops", nil)
	require.NoError(t, err)
	f.categoryID = category.ID

	return f
}

func (f *fixture) product(t *testing.T, price string, stock int) *models.Product {
	t.Helper()
	p, err := f.catalog.CreateProduct(context.Background(), models.ProductParams{
		Name:          "Product",
		CategoryID:    f.categoryID,
		BrandName:     "Brand",
		CostPrice:     decimal.RequireFromString(price).Div(decimal.NewFromInt(2)),
		SellPrice:     decimal.RequireFromString(price),
		StockQuantity: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) order(t *testing.T) *models.Order {
	t.Helper()
	customerID := f.customerID
	view, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{UserID: f.userID, CustomerID: &customerID})
	require.NoError(t, err)
	return view.Order
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.catalog.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) repoView(t *testing.T, fn store.TxFunc) {
	t.Helper()
	require.NoError(t, f.backend.View(context.Background(), fn))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
