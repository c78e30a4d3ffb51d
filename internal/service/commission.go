package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pos-service/internal/lock"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var hundred = decimal.NewFromInt(100)

// CommissionCalculator computes per-user, per-month sales commission from
// completed orders. Each (user, month, year) is upserted independently.
type CommissionCalculator struct {
	backend   store.Backend
	locker    lock.Locker
	publisher EventPublisher
	workers   int
	now       Clock
	logger    *zap.Logger
}

// NewCommissionCalculator creates a calculator; workers bounds ComputePeriod fan-out
func NewCommissionCalculator(backend store.Backend, locker lock.Locker, publisher EventPublisher, workers int, now Clock) *CommissionCalculator {
	if workers < 1 {
		workers = 1
	}
	return &CommissionCalculator{
		backend:   backend,
		locker:    locker,
		publisher: publisher,
		workers:   workers,
		now:       now.orDefault(),
		logger:    util.GetLogger(),
	}
}

// ValidateRate rejects rates outside [0, 100] or with more than 2 decimals
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) || !models.WholeCents(rate) {
		return fmt.Errorf("%w: got %s", models.ErrInvalidRate, rate)
	}
	return nil
}

// CommissionAmount is totalSales × rate / 100 rounded half-to-even to cents
func CommissionAmount(totalSales, rate decimal.Decimal) decimal.Decimal {
	return totalSales.Mul(rate).Div(hundred).RoundBank(2)
}

// Compute sums the user's completed orders dated within the month (UTC) and
// writes the single commission row for that period. Re-running it with the
// same inputs yields the same amount.
func (c *CommissionCalculator) Compute(ctx context.Context, userID int64, month, year int, rate decimal.Decimal) (*models.Commission, error) {
	ctx, span := util.StartSpan(ctx, "CommissionCalculator.Compute")
	defer span.End()

	if err := models.ValidateCommissionPeriod(month, year); err != nil {
		return nil, err
	}
	if err := ValidateRate(rate); err != nil {
		return nil, err
	}

	release, err := c.locker.Lock(ctx, lock.CommissionKey(userID, month, year))
	if err != nil {
		util.CommissionRunsTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	defer release()

	var commission *models.Commission
	err = c.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.GetUser(ctx, userID); err != nil {
			return err
		}

		from, to := models.PeriodBounds(month, year)
		total, err := repo.SumCompletedSales(ctx, userID, from, to)
		if err != nil {
			return fmt.Errorf("failed to sum sales: %w", err)
		}

		commission = &models.Commission{
			UserID:           userID,
			Month:            month,
			Year:             year,
			TotalSales:       total,
			CommissionRate:   rate,
			CommissionAmount: CommissionAmount(total, rate),
		}
		return repo.UpsertCommission(ctx, commission)
	})
	if err != nil {
		util.CommissionRunsTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.CommissionRunsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("Commission computed",
		zap.Int64("user_id", userID),
		zap.Int("month", month),
		zap.Int("year", year),
		zap.String("total_sales", commission.TotalSales.String()),
		zap.String("amount", commission.CommissionAmount.String()))

	event := &models.CommissionComputedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeCommissionComputed, c.now().UTC()),
		UserID:           userID,
		Month:            month,
		Year:             year,
		TotalSales:       commission.TotalSales,
		CommissionAmount: commission.CommissionAmount,
	}
	if err := c.publisher.PublishCommissionComputed(ctx, event); err != nil {
		c.logger.Error("Failed to publish CommissionComputed event", zap.Error(err))
	}

	return commission, nil
}

// ComputePeriod runs Compute for every user. Cancelling ctx stops it between
// users; commissions already written stay valid and are returned along with
// the error.
func (c *CommissionCalculator) ComputePeriod(ctx context.Context, month, year int, rate decimal.Decimal) ([]models.Commission, error) {
	ctx, span := util.StartSpan(ctx, "CommissionCalculator.ComputePeriod")
	defer span.End()

	if err := models.ValidateCommissionPeriod(month, year); err != nil {
		return nil, err
	}
	if err := ValidateRate(rate); err != nil {
		return nil, err
	}

	var userIDs []int64
	err := c.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		userIDs, err = repo.ListUserIDs(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var (
		mu      sync.Mutex
		results = make([]models.Commission, 0, len(userIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, userID := range userIDs {
		if gctx.Err() != nil {
			break
		}
		userID := userID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			commission, err := c.Compute(gctx, userID, month, year, rate)
			if err != nil {
				return fmt.Errorf("user %d: %w", userID, err)
			}
			mu.Lock()
			results = append(results, *commission)
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	sort.Slice(results, func(i, j int) bool { return results[i].UserID < results[j].UserID })

	if err != nil {
		c.logger.Warn("Commission batch stopped early",
			zap.Int("month", month),
			zap.Int("year", year),
			zap.Int("computed", len(results)),
			zap.Int("users", len(userIDs)),
			zap.Error(err))
		return results, err
	}

	c.logger.Info("Commission batch finished",
		zap.Int("month", month),
		zap.Int("year", year),
		zap.Int("computed", len(results)))
	return results, nil
}
