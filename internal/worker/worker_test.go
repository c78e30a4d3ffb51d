package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pos-service/internal/lock"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/settings"
	"pos-service/internal/store"
	"pos-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}
func (nopPublisher) PublishOrderCompleted(context.Context, *models.OrderCompletedEvent) error {
	return nil
}
func (nopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}
func (nopPublisher) PublishOrderReturned(context.Context, *models.OrderReturnedEvent) error {
	return nil
}
func (nopPublisher) PublishCommissionComputed(context.Context, *models.CommissionComputedEvent) error {
	return nil
}

func strPtr(s string) *string { return &s }

func newRegistry(t *testing.T, backend store.Backend) *settings.Registry {
	t.Helper()
	registry := settings.NewRegistry(backend, time.Now)
	require.NoError(t, registry.SeedDefaults(context.Background()))
	return registry
}

func TestPreviousPeriod(t *testing.T) {
	month, year := PreviousPeriod(time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 12, month)
	assert.Equal(t, 2023, year)

	month, year = PreviousPeriod(time.Date(2024, time.March, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, month)
	assert.Equal(t, 2024, year)
}

func TestCommissionWorker_RunOnce(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	registry := newRegistry(t, backend)

	var userID int64
	err := backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		role := &models.Role{Name: "Cashier"}
		if err := repo.CreateRole(ctx, role); err != nil {
			return err
		}
		user := &models.User{FullName: "Ana", Username: "ana", RoleID: role.ID, IsActive: true}
		if err := repo.CreateUser(ctx, user); err != nil {
			return err
		}
		userID = user.ID
		return repo.CreateOrder(ctx, &models.Order{
			UserID:      userID,
			OrderDate:   time.Date(2024, time.February, 20, 12, 0, 0, 0, time.UTC),
			Status:      models.OrderStatusCompleted,
			Subtotal:    decimal.NewFromInt(400),
			Discount:    decimal.Zero,
			TotalAmount: decimal.NewFromInt(400),
		})
	})
	require.NoError(t, err)

	_, err = registry.Set(ctx, settings.SetRequest{
		Key:   models.SettingCommissionDefaultRate,
		Value: strPtr("2.5"),
		Type:  models.SettingTypeDecimal,
	})
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2024, time.March, 1, 1, 0, 0, 0, time.UTC) }
	calc := service.NewCommissionCalculator(backend, lock.NewKeyedMutex(time.Second), nopPublisher{}, 2, now)
	w := NewCommissionWorker(calc, registry, decimal.NewFromInt(5), time.Hour, now)

	results, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, userID, results[0].UserID)
	assert.Equal(t, 2, results[0].Month)
	assert.True(t, results[0].CommissionAmount.Equal(decimal.NewFromInt(10)))
}

func TestCommissionWorker_FallbackRate(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	registry := settings.NewRegistry(backend, time.Now)

	w := NewCommissionWorker(nil, registry, decimal.NewFromInt(3), time.Hour, nil)
	rate, err := w.rate(ctx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(3)))
}

func completedEvent(id string) *models.OrderCompletedEvent {
	return &models.OrderCompletedEvent{
		BaseEvent:   models.BaseEvent{EventID: id, EventType: models.EventTypeOrderCompleted, Timestamp: time.Now()},
		OrderID:     12,
		UserID:      1,
		Subtotal:    decimal.RequireFromString("100"),
		Discount:    decimal.RequireFromString("20"),
		TotalAmount: decimal.RequireFromString("80"),
		Items: []models.OrderItemData{
			{ProductID: 7, Quantity: 2, UnitPrice: decimal.RequireFromString("50")},
		},
		Payments: []models.PaymentData{
			{PaymentID: 1, Method: models.PaymentMethodCash, Amount: decimal.RequireFromString("80")},
		},
	}
}

func spooled(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	return matches
}

func TestReceiptWorker_PrintsWhenAutoPrintOn(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	registry := newRegistry(t, backend)
	dir := t.TempDir()

	_, err := registry.Set(ctx, settings.SetRequest{Key: models.SettingAutoPrintReceipt, Value: strPtr("true"), Type: models.SettingTypeBool})
	require.NoError(t, err)
	_, err = registry.Set(ctx, settings.SetRequest{Key: models.SettingStoreName, Value: strPtr("Tech Haven"), Type: models.SettingTypeString})
	require.NoError(t, err)

	w := NewReceiptWorker(nil, backend, registry, dir)
	require.NoError(t, w.HandleOrderCompleted(ctx, completedEvent("evt-1")))

	files := spooled(t, dir)
	require.Len(t, files, 1)
	body, err := os.ReadFile(files[0])
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "Tech Haven")
	assert.Contains(t, text, "Order #12")
	assert.Contains(t, text, "USD 100.00")
	assert.Contains(t, text, "USD 80.00")
	assert.Contains(t, text, "Thank you for your purchase!")
}

func TestReceiptWorker_SkipsWhenAutoPrintOff(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	registry := newRegistry(t, backend)
	dir := t.TempDir()

	w := NewReceiptWorker(nil, backend, registry, dir)
	require.NoError(t, w.HandleOrderCompleted(ctx, completedEvent("evt-2")))
	assert.Empty(t, spooled(t, dir))

	err := backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		processed, err := repo.IsEventProcessed(ctx, "evt-2")
		assert.True(t, processed)
		return err
	})
	require.NoError(t, err)
}

func TestReceiptWorker_HandlesEventOnce(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	registry := newRegistry(t, backend)
	dir := t.TempDir()

	_, err := registry.Set(ctx, settings.SetRequest{Key: models.SettingAutoPrintReceipt, Value: strPtr("true"), Type: models.SettingTypeBool})
	require.NoError(t, err)

	w := NewReceiptWorker(nil, backend, registry, dir)
	require.NoError(t, w.HandleOrderCompleted(ctx, completedEvent("evt-3")))
	files := spooled(t, dir)
	require.Len(t, files, 1)
	require.NoError(t, os.Remove(files[0]))

	require.NoError(t, w.HandleOrderCompleted(ctx, completedEvent("evt-3")))
	assert.Empty(t, spooled(t, dir))
}

func TestReceiptWorker_ReturnSlip(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	registry := newRegistry(t, backend)
	dir := t.TempDir()

	_, err := registry.Set(ctx, settings.SetRequest{Key: models.SettingAutoPrintReceipt, Value: strPtr("true"), Type: models.SettingTypeBool})
	require.NoError(t, err)

	w := NewReceiptWorker(nil, backend, registry, dir)
	err = w.HandleOrderReturned(ctx, &models.OrderReturnedEvent{
		BaseEvent:   models.BaseEvent{EventID: "evt-4", EventType: models.EventTypeOrderReturned},
		OrderID:     12,
		TotalAmount: decimal.RequireFromString("80"),
		Items:       []models.OrderItemData{{ProductID: 7, Quantity: 2, UnitPrice: decimal.RequireFromString("40")}},
	})
	require.NoError(t, err)

	files := spooled(t, dir)
	require.Len(t, files, 1)
	body, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "RETURN  Order #12")
}
