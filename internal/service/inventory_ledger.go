package service

import (
	"context"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// StockCache caches live stock levels for reads. Writes always go to the store.
type StockCache interface {
	GetStockLevel(ctx context.Context, productID int64) (int, bool, error)
	SetStockLevel(ctx context.Context, productID int64, level int, ttl time.Duration) error
	InvalidateStock(ctx context.Context, productIDs ...int64) error
}

// InventoryLedger owns per-product stock. Reserve decrements immediately so
// concurrent terminals always see live stock; Commit and Release only change
// whether a reservation can still be reversed.
type InventoryLedger struct {
	backend  store.Backend
	cache    StockCache
	cacheTTL time.Duration
	now      Clock
	logger   *zap.Logger
}

// NewInventoryLedger creates an InventoryLedger; cache may be nil
func NewInventoryLedger(backend store.Backend, cache StockCache, cacheTTL time.Duration, now Clock) *InventoryLedger {
	return &InventoryLedger{
		backend:  backend,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      now.orDefault(),
		logger:   util.GetLogger(),
	}
}

// Reserve takes quantity out of stock for an order line. It fails with
// ErrInsufficientStock when stock is short or the product is a draft.
func (l *InventoryLedger) Reserve(ctx context.Context, repo store.Repository, orderID, detailID, productID int64, quantity int) (*models.Reservation, error) {
	start := time.Now()
	defer func() {
		util.ReservationLatency.Observe(time.Since(start).Seconds())
	}()

	if quantity < 1 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidQuantity, quantity)
	}

	now := l.now().UTC()
	remaining, err := repo.DecrementStock(ctx, productID, quantity, now)
	if err != nil {
		util.ReservationsFailed.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	res := &models.Reservation{
		OrderID:       orderID,
		OrderDetailID: detailID,
		ProductID:     productID,
		Quantity:      quantity,
		State:         models.ReservationActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.CreateReservation(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}

	l.logger.Debug("Stock reserved",
		zap.Int64("order_id", orderID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining))
	return res, nil
}

// Release reverses an active reservation and credits the stock back. A
// reservation that is already released or committed fails with ErrInvalidState.
func (l *InventoryLedger) Release(ctx context.Context, repo store.Repository, reservationID int64) error {
	res, err := repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	now := l.now().UTC()
	if err := repo.TransitionReservation(ctx, res.ID, models.ReservationActive, models.ReservationReleased, now); err != nil {
		return err
	}
	if _, err := repo.IncrementStock(ctx, res.ProductID, res.Quantity, now); err != nil {
		return fmt.Errorf("failed to credit stock for reservation %d: %w", res.ID, err)
	}
	return nil
}

// Commit makes an active reservation a permanent sale. Stock is unchanged.
func (l *InventoryLedger) Commit(ctx context.Context, repo store.Repository, reservationID int64) error {
	return repo.TransitionReservation(ctx, reservationID, models.ReservationActive, models.ReservationCommitted, l.now().UTC())
}

// Restock is a positive stock adjustment, used by returns
func (l *InventoryLedger) Restock(ctx context.Context, repo store.Repository, productID int64, quantity int) (int, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("%w: got %d", models.ErrInvalidQuantity, quantity)
	}
	return repo.IncrementStock(ctx, productID, quantity, l.now().UTC())
}

// StockLevel reads the live stock of a product, through the cache when one is configured
func (l *InventoryLedger) StockLevel(ctx context.Context, productID int64) (int, error) {
	if l.cache != nil {
		level, ok, err := l.cache.GetStockLevel(ctx, productID)
		if err != nil {
			l.logger.Warn("Stock cache read failed", zap.Int64("product_id", productID), zap.Error(err))
		} else if ok {
			return level, nil
		}
	}

	var level int
	err := l.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		p, err := repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		level = p.StockQuantity
		return nil
	})
	if err != nil {
		return 0, err
	}

	if l.cache != nil {
		if err := l.cache.SetStockLevel(ctx, productID, level, l.cacheTTL); err != nil {
			l.logger.Warn("Stock cache write failed", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
	return level, nil
}

// Invalidate drops cached levels after a committed stock change
func (l *InventoryLedger) Invalidate(ctx context.Context, productIDs ...int64) {
	if l.cache == nil || len(productIDs) == 0 {
		return
	}
	if err := l.cache.InvalidateStock(ctx, productIDs...); err != nil {
		l.logger.Warn("Stock cache invalidation failed", zap.Int64s("product_ids", productIDs), zap.Error(err))
	}
}
