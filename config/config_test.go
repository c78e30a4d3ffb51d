package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Business.LockTimeout)
	assert.True(t, cfg.Business.CommissionRate.Equal(decimal.NewFromInt(5)))
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.InMemory())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", MemoryDatabaseURL)
	t.Setenv("ORDER_LOCK_TIMEOUT", "250ms")
	t.Setenv("COMMISSION_DEFAULT_RATE", "7.5")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("COMMISSION_WORKERS", "not-a-number")

	cfg := Load()

	assert.True(t, cfg.InMemory())
	assert.Equal(t, 250*time.Millisecond, cfg.Business.LockTimeout)
	assert.True(t, cfg.Business.CommissionRate.Equal(decimal.RequireFromString("7.5")))
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Business.CommissionWorkers)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.Server.Env = "production"
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.Server.Env = "development"
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.Auth.JWTSecret)

	cfg.Business.CommissionRate = decimal.RequireFromString("12.345")
	assert.Error(t, cfg.Validate())

	cfg.Business.CommissionRate = decimal.RequireFromString("12.5")
	require.NoError(t, cfg.Validate())

	cfg.Business.LockTimeout = 0
	assert.Error(t, cfg.Validate())
}
