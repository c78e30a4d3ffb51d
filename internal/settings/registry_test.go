package settings

import (
	"context"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewRegistry(memstore.New(), func() time.Time { return now })
}

func TestSeedDefaults(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.SeedDefaults(ctx))
	require.NoError(t, r.SeedDefaults(ctx))

	value, typ, err := r.Get(ctx, models.SettingAutoPrintReceipt)
	require.NoError(t, err)
	assert.Equal(t, "false", value)
	assert.Equal(t, models.SettingTypeBool, typ)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(defaults))

	rate, err := r.Decimal(ctx, models.SettingCommissionDefaultRate)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(rate))
}

func TestGet_Missing(t *testing.T) {
	r := newRegistry(t)

	_, _, err := r.Get(context.Background(), "Nope.Key")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSet_ValidatesKeyAndValue(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SetRequest
	}{
		{"bad key", SetRequest{Key: "bad key!", Value: strPtr("x")}},
		{"empty key", SetRequest{Key: "", Value: strPtr("x")}},
		{"not a number", SetRequest{Key: "Pos.Lanes", Value: strPtr("two"), Type: models.SettingTypeNumber}},
		{"not a bool", SetRequest{Key: "Pos.Flag", Value: strPtr("maybe"), Type: models.SettingTypeBool}},
		{"not json", SetRequest{Key: "Pos.Layout", Value: strPtr("{"), Type: models.SettingTypeJSON}},
		{"unknown type", SetRequest{Key: "Pos.X", Value: strPtr("1"), Type: "FLOAT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Set(ctx, tt.req)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestSet_TypedRoundTrip(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	_, err := r.Set(ctx, SetRequest{Key: "Pos.Lanes", Value: strPtr("4"), Type: models.SettingTypeNumber})
	require.NoError(t, err)
	_, err = r.Set(ctx, SetRequest{Key: "Pos.Layout", Value: strPtr(`{"columns":3}`), Type: models.SettingTypeJSON})
	require.NoError(t, err)

	lanes, err := r.Int(ctx, "Pos.Lanes")
	require.NoError(t, err)
	assert.Equal(t, int64(4), lanes)

	var layout struct {
		Columns int `json:"columns"`
	}
	require.NoError(t, r.JSON(ctx, "Pos.Layout", &layout))
	assert.Equal(t, 3, layout.Columns)

	_, err = r.Bool(ctx, "Pos.Lanes", false)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSystemSettings_AreProtected(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.SeedDefaults(ctx))

	err := r.Delete(ctx, models.SettingStoreName)
	assert.ErrorIs(t, err, models.ErrProtectedResource)

	_, err = r.Set(ctx, SetRequest{Key: models.SettingAutoPrintReceipt, Value: strPtr("1"), Type: models.SettingTypeNumber})
	assert.ErrorIs(t, err, models.ErrProtectedResource)

	saved, err := r.Set(ctx, SetRequest{Key: models.SettingAutoPrintReceipt, Value: strPtr("true"), Type: models.SettingTypeBool})
	require.NoError(t, err)
	assert.True(t, saved.IsSystem)

	on, err := r.Bool(ctx, models.SettingAutoPrintReceipt, false)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestDelete_UserSetting(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	_, err := r.Set(ctx, SetRequest{Key: "Pos.Theme", Value: strPtr("dark")})
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, "Pos.Theme"))

	assert.ErrorIs(t, r.Delete(ctx, "Pos.Theme"), models.ErrNotFound)
}

func TestFormatAmount(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	s, err := r.FormatAmount(ctx, decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.Equal(t, "USD 12.50", s)

	_, err = r.Set(ctx, SetRequest{Key: models.SettingDefaultCurrency, Value: strPtr("VND")})
	require.NoError(t, err)

	s, err = r.FormatAmount(ctx, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "VND 1000.00", s)
}
