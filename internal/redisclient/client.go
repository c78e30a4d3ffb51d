package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/unlock.lua
var unlockScriptSrc string

//go:embed scripts/extend.lua
var extendScriptSrc string

type Client struct {
	rdb          *redis.Client
	unlockScript *redis.Script
	extendScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:          rdb,
		unlockScript: redis.NewScript(unlockScriptSrc),
		extendScript: redis.NewScript(extendScriptSrc),
	}, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// AcquireLock sets the lock key to token if nobody holds it
func (c *Client) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
}

// ReleaseLock deletes the lock key only while it still holds token
func (c *Client) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	n, err := c.unlockScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("unlock script failed: %w", err)
	}
	return n == 1, nil
}

// ExtendLock resets the TTL of a lock still owned by token
func (c *Client) ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := c.extendScript.Run(ctx, c.rdb, []string{lockKey(key)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend script failed: %w", err)
	}
	return n == 1, nil
}

// GetStockLevel returns a cached stock level; ok is false on a miss
func (c *Client) GetStockLevel(ctx context.Context, productID int64) (level int, ok bool, err error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	level, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock cache for product %d: %w", productID, err)
	}
	return level, true, nil
}

// SetStockLevel caches a stock level with TTL
func (c *Client) SetStockLevel(ctx context.Context, productID int64, level int, ttl time.Duration) error {
	return c.rdb.Set(ctx, stockKey(productID), level, ttl).Err()
}

// InvalidateStock drops cached stock levels
func (c *Client) InvalidateStock(ctx context.Context, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = stockKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
