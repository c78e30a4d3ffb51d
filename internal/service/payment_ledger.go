package service

import (
	"context"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentLedger records immutable payments against an order
type PaymentLedger struct {
	now    Clock
	logger *zap.Logger
}

// NewPaymentLedger creates a PaymentLedger
func NewPaymentLedger(now Clock) *PaymentLedger {
	return &PaymentLedger{now: now.orDefault(), logger: util.GetLogger()}
}

// ValidatePayment rejects non-positive or sub-cent amounts and unknown methods
func ValidatePayment(method models.PaymentMethod, amount decimal.Decimal) error {
	if !amount.IsPositive() || !models.WholeCents(amount) {
		return fmt.Errorf("%w: got %s", models.ErrInvalidAmount, amount)
	}
	if !method.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidPaymentMethod, method)
	}
	return nil
}

// Paid sums the payments recorded for an order
func (l *PaymentLedger) Paid(ctx context.Context, repo store.Repository, orderID int64) (decimal.Decimal, error) {
	payments, err := repo.ListPayments(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	return models.SumPayments(payments), nil
}

// Record appends a payment if it fits in the remaining balance. Nothing is
// written when it does not. It returns the payment and the new paid total.
func (l *PaymentLedger) Record(ctx context.Context, repo store.Repository, order *models.Order, method models.PaymentMethod, amount decimal.Decimal) (*models.Payment, decimal.Decimal, error) {
	if err := ValidatePayment(method, amount); err != nil {
		util.PaymentsRejectedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, decimal.Zero, err
	}

	paid, err := l.Paid(ctx, repo, order.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	remaining := order.Balance(paid)
	if amount.GreaterThan(remaining) {
		util.PaymentsRejectedTotal.WithLabelValues("overpayment").Inc()
		return nil, paid, fmt.Errorf("%w: order %d remaining=%s, attempted=%s",
			models.ErrOverpayment, order.ID, remaining.StringFixed(2), amount.StringFixed(2))
	}

	payment := &models.Payment{
		OrderID:     order.ID,
		Method:      method,
		Amount:      amount,
		PaymentDate: l.now().UTC(),
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, paid, fmt.Errorf("failed to create payment: %w", err)
	}

	util.PaymentsRecordedTotal.WithLabelValues(string(method)).Inc()
	l.logger.Info("Payment recorded",
		zap.Int64("order_id", order.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("method", string(method)),
		zap.String("amount", amount.String()))

	return payment, paid.Add(amount), nil
}
