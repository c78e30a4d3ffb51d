package service

import (
	"context"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommissionAmount(t *testing.T) {
	tests := []struct {
		total, rate, want string
	}{
		{"1000", "5", "50"},
		{"2.50", "5", "0.12"},
		{"2.70", "5", "0.14"},
		{"0", "7.5", "0"},
		{"999.99", "100", "999.99"},
	}
	for _, tt := range tests {
		got := CommissionAmount(dec(tt.total), dec(tt.rate))
		assert.True(t, got.Equal(dec(tt.want)), "%s × %s%% = %s, want %s", tt.total, tt.rate, got, tt.want)
	}
}

// sell completes an order of amount for the fixture user at the current clock
func sell(t *testing.T, f *fixture, price string) {
	t.Helper()
	ctx := context.Background()
	p := f.product(t, price, 1)
	o := f.order(t)
	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)
	res, err := f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec(price))
	require.NoError(t, err)
	require.True(t, res.Completed)
}

func TestCompute_SumsCompletedOrdersInPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sell(t, f, "600")
	sell(t, f, "400")

	// pending order in the same month is ignored
	p := f.product(t, "300", 1)
	o := f.order(t)
	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)

	// sale in the next month is ignored
	f.clock.Set(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	sell(t, f, "250")

	c, err := f.commissions.Compute(ctx, f.userID, 3, 2024, dec("5"))
	require.NoError(t, err)
	assert.True(t, c.TotalSales.Equal(dec("1000")))
	assert.True(t, c.CommissionAmount.Equal(dec("50")))
	require.Len(t, f.events.commissions, 1)
}

func TestCompute_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell(t, f, "1000")

	first, err := f.commissions.Compute(ctx, f.userID, 3, 2024, dec("5"))
	require.NoError(t, err)
	second, err := f.commissions.Compute(ctx, f.userID, 3, 2024, dec("5"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CommissionAmount.Equal(second.CommissionAmount))

	f.repoView(t, func(ctx context.Context, repo store.Repository) error {
		stored, err := repo.GetCommission(ctx, f.userID, 3, 2024)
		require.NoError(t, err)
		assert.True(t, stored.CommissionAmount.Equal(dec("50")))
		return nil
	})
}

func TestCompute_RateChangeOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell(t, f, "1000")

	_, err := f.commissions.Compute(ctx, f.userID, 3, 2024, dec("5"))
	require.NoError(t, err)
	c, err := f.commissions.Compute(ctx, f.userID, 3, 2024, dec("7.5"))
	require.NoError(t, err)

	assert.True(t, c.CommissionAmount.Equal(dec("75")))
	assert.True(t, c.CommissionRate.Equal(dec("7.5")))
}

func TestCompute_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.commissions.Compute(ctx, f.userID, 13, 2024, dec("5"))
	assert.ErrorIs(t, err, models.ErrInvalidPeriod)

	_, err = f.commissions.Compute(ctx, f.userID, 1, 1999, dec("5"))
	assert.ErrorIs(t, err, models.ErrInvalidPeriod)

	_, err = f.commissions.Compute(ctx, f.userID, 1, 2024, dec("100.01"))
	assert.ErrorIs(t, err, models.ErrInvalidRate)

	_, err = f.commissions.Compute(ctx, f.userID, 1, 2024, dec("-1"))
	assert.ErrorIs(t, err, models.ErrInvalidRate)

	_, err = f.commissions.Compute(ctx, f.userID, 1, 2024, dec("12.345"))
	assert.ErrorIs(t, err, models.ErrInvalidRate)

	_, err = f.commissions.Compute(ctx, 999, 1, 2024, dec("5"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestComputePeriod_AllUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.catalog.CreateUser(ctx, "Ben Seller", "ben", "secret", f.roleID)
	require.NoError(t, err)
	sell(t, f, "200")

	results, err := f.commissions.ComputePeriod(ctx, 3, 2024, dec("10"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, f.userID, results[0].UserID)
	assert.True(t, results[0].CommissionAmount.Equal(dec("20")))
	assert.Equal(t, other.ID, results[1].UserID)
	assert.True(t, results[1].CommissionAmount.IsZero())
}

func TestComputePeriod_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.commissions.ComputePeriod(ctx, 3, 2024, dec("5"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
