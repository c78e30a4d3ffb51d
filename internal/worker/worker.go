package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/settings"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source delivers broker messages to a handler until ctx ends
type Source interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// CommissionWorker periodically computes the previous month's commissions
// for every user
type CommissionWorker struct {
	calculator   *service.CommissionCalculator
	settings     *settings.Registry
	fallbackRate decimal.Decimal
	interval     time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewCommissionWorker creates a new commission worker. fallbackRate is used
// when the Commission.DefaultRate setting is absent.
func NewCommissionWorker(
	calculator *service.CommissionCalculator,
	registry *settings.Registry,
	fallbackRate decimal.Decimal,
	interval time.Duration,
	now func() time.Time,
) *CommissionWorker {
	if now == nil {
		now = time.Now
	}
	return &CommissionWorker{
		calculator:   calculator,
		settings:     registry,
		fallbackRate: fallbackRate,
		interval:     interval,
		now:          now,
		logger:       util.GetLogger(),
	}
}

// PreviousPeriod returns the month and year before t, in UTC
func PreviousPeriod(t time.Time) (month, year int) {
	t = t.UTC()
	prev := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return int(prev.Month()), prev.Year()
}

func (w *CommissionWorker) rate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := w.settings.Decimal(ctx, models.SettingCommissionDefaultRate)
	if errors.Is(err, models.ErrNotFound) {
		return w.fallbackRate, nil
	}
	return rate, err
}

// RunOnce computes commissions for the previous month
func (w *CommissionWorker) RunOnce(ctx context.Context) ([]models.Commission, error) {
	month, year := PreviousPeriod(w.now())

	rate, err := w.rate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read commission rate: %w", err)
	}

	w.logger.Info("Computing commissions",
		zap.Int("month", month),
		zap.Int("year", year),
		zap.String("rate", rate.String()))
	return w.calculator.ComputePeriod(ctx, month, year, rate)
}

// Start runs immediately and then on every interval until ctx is cancelled
func (w *CommissionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting commission worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Commission run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Stopping commission worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
