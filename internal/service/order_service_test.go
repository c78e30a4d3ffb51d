package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pos-service/internal/lock"
	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{UserID: f.userID})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, view.Order.Status)
	assert.Nil(t, view.Order.CustomerID)
	assert.True(t, view.Order.TotalAmount.IsZero())
	require.Len(t, f.events.created, 1)
	assert.Equal(t, view.Order.ID, f.events.created[0].OrderID)
}

func TestCreateOrder_InactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.catalog.SetUserActive(ctx, f.userID, false))

	_, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{UserID: f.userID})
	assert.ErrorIs(t, err, models.ErrInactiveUser)
	assert.Empty(t, f.events.created)
}

func TestCreateOrder_UnknownCustomer(t *testing.T) {
	f := newFixture(t)
	missing := int64(999)

	_, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{UserID: f.userID, CustomerID: &missing})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := &CreateOrderRequest{UserID: f.userID, IdempotencyKey: "terminal-3-0001"}

	first, err := f.orders.CreateOrder(ctx, req)
	require.NoError(t, err)
	second, err := f.orders.CreateOrder(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, f.events.created, 1)
}

func TestAddLine_SnapshotsPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "100", 10)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 2)
	require.NoError(t, err)

	_, err = f.catalog.UpdateProductPrices(ctx, p.ID, dec("60"), dec("120"))
	require.NoError(t, err)

	view, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, view.Details, 1)
	assert.True(t, view.Details[0].UnitPrice.Equal(dec("100")))
	assert.True(t, view.Details[0].CostPrice.Equal(dec("50")))
	assert.True(t, view.Order.Subtotal.Equal(dec("200")))
	assert.True(t, view.Order.TotalAmount.Equal(dec("200")))

	require.Len(t, view.Reservations, 1)
	assert.Equal(t, models.ReservationActive, view.Reservations[0].State)
	assert.Equal(t, 8, f.stock(t, p.ID))
}

func TestAddLine_InsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 2)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 3)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	view, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Details)
	assert.Empty(t, view.Reservations)
	assert.True(t, view.Order.Subtotal.IsZero())
	assert.Equal(t, 2, f.stock(t, p.ID))
}

func TestAddLine_DraftProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.catalog.CreateProduct(ctx, models.ProductParams{
		Name: "Prototype", CategoryID: f.categoryID, SellPrice: dec("5"), StockQuantity: 10, IsDraft: true,
	})
	require.NoError(t, err)
	o := f.order(t)

	_, err = f.orders.AddLine(ctx, o.ID, p.ID, 1)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestAddLine_InvalidQuantity(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10", 5)
	o := f.order(t)

	_, err := f.orders.AddLine(context.Background(), o.ID, p.ID, 0)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}

func TestAddLine_ConcurrentOrdersExactlyOneShort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 5)
	orders := []*models.Order{f.order(t), f.order(t)}

	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i, o := range orders {
		wg.Add(1)
		go func(i int, orderID int64) {
			defer wg.Done()
			_, errs[i] = f.orders.AddLine(ctx, orderID, p.ID, 3)
		}(i, o.ID)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, models.ErrInsufficientStock)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 2, f.stock(t, p.ID))
}

func TestAddLine_ConcurrentReservationsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "1", 10)

	const attempts = 25
	orders := make([]*models.Order, attempts)
	for i := range orders {
		orders[i] = f.order(t)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, o := range orders {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			_, err := f.orders.AddLine(ctx, orderID, p.ID, 1)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrInsufficientStock)
		}(o.ID)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestRecordPayment_AutoCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "100", 5)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)
	view, err := f.orders.ApplyDiscount(ctx, o.ID, dec("20"))
	require.NoError(t, err)
	assert.True(t, view.Order.TotalAmount.Equal(dec("80")))

	first, err := f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec("50"))
	require.NoError(t, err)
	assert.False(t, first.Completed)
	assert.Equal(t, models.OrderStatusPending, first.Order.Order.Status)

	second, err := f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCreditCard, dec("30"))
	require.NoError(t, err)
	assert.True(t, second.Completed)
	assert.Equal(t, models.OrderStatusCompleted, second.Order.Order.Status)
	require.Len(t, second.Order.Reservations, 1)
	assert.Equal(t, models.ReservationCommitted, second.Order.Reservations[0].State)

	_, err = f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec("1"))
	assert.ErrorIs(t, err, models.ErrOverpayment)

	require.Len(t, f.events.completed, 1)
	assert.True(t, f.events.completed[0].TotalAmount.Equal(dec("80")))
	assert.Len(t, f.events.completed[0].Payments, 2)

	customer, err := f.catalog.GetCustomer(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, customer.TotalPurchased.Equal(dec("80")))
	assert.Equal(t, 4, f.stock(t, p.ID))
}

func TestRecordPayment_Validation(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	ctx := context.Background()

	_, err := f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec("0"))
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = f.orders.RecordPayment(ctx, o.ID, models.PaymentMethod("BARTER"), dec("5"))
	assert.ErrorIs(t, err, models.ErrInvalidPaymentMethod)
}

func TestRecordPayment_ExceedsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "40", 5)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)

	_, err = f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec("40.01"))
	assert.ErrorIs(t, err, models.ErrOverpayment)

	view, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Payments)
}

func TestRecordPayment_ConcurrentNeverExceedTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "100", 5)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec("30"))
			if err != nil {
				assert.ErrorIs(t, err, models.ErrOverpayment)
			}
		}()
	}
	wg.Wait()

	view, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, view.Payments, 3)
	assert.True(t, view.Paid().Equal(dec("90")))
	assert.True(t, view.Paid().LessThanOrEqual(view.Order.TotalAmount))
	assert.Equal(t, models.OrderStatusPending, view.Order.Status)
}

func TestApplyDiscount_ExceedsSubtotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "100", 5)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)

	_, err = f.orders.ApplyDiscount(ctx, o.ID, dec("100.01"))
	assert.ErrorIs(t, err, models.ErrInvalidDiscount)

	_, err = f.orders.ApplyDiscount(ctx, o.ID, dec("-1"))
	assert.ErrorIs(t, err, models.ErrInvalidDiscount)

	view, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, view.Order.Subtotal.Equal(dec("100")))
	assert.True(t, view.Order.Discount.IsZero())
	assert.True(t, view.Order.TotalAmount.Equal(dec("100")))
}

func TestMoneyInputs_RejectFractionsOfACent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 5)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)

	_, err = f.orders.ApplyDiscount(ctx, o.ID, dec("0.005"))
	assert.ErrorIs(t, err, models.ErrInvalidDiscount)

	_, err = f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec("9.994"))
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	view, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, view.Order.Discount.IsZero())
	assert.True(t, view.Order.TotalAmount.Equal(dec("10")))
	assert.Empty(t, view.Payments)

	// trailing zeros are still whole cents
	view, err = f.orders.ApplyDiscount(ctx, o.ID, dec("0.500"))
	require.NoError(t, err)
	assert.True(t, view.Order.TotalAmount.Equal(dec("9.5")))
}

func TestApplyDiscount_BelowPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "100", 5)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)
	_, err = f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec("90"))
	require.NoError(t, err)

	_, err = f.orders.ApplyDiscount(ctx, o.ID, dec("20"))
	assert.ErrorIs(t, err, models.ErrInvalidDiscount)

	view, err := f.orders.ApplyDiscount(ctx, o.ID, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, view.Order.Status)

	view, err = f.orders.CompleteOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, view.Order.Status)
}

func TestCompleteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "25", 5)

	empty := f.order(t)
	_, err := f.orders.CompleteOrder(ctx, empty.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	o := f.order(t)
	_, err = f.orders.AddLine(ctx, o.ID, p.ID, 1)
	require.NoError(t, err)

	_, err = f.orders.CompleteOrder(ctx, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "outstanding balance")

	_, err = f.orders.ApplyDiscount(ctx, o.ID, dec("25"))
	require.NoError(t, err)
	view, err := f.orders.CompleteOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, view.Order.Status)
	assert.Equal(t, models.ReservationCommitted, view.Reservations[0].State)
	assert.Len(t, f.events.completed, 1)
}

func TestReturnOrder_Restocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "15", 10)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 2)
	require.NoError(t, err)
	_, err = f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodBankTransfer, dec("30"))
	require.NoError(t, err)
	assert.Equal(t, 8, f.stock(t, p.ID))

	view, err := f.orders.ReturnOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReturned, view.Order.Status)
	assert.Equal(t, 10, f.stock(t, p.ID))

	customer, err := f.catalog.GetCustomer(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, customer.TotalPurchased.IsZero())

	require.Len(t, f.events.returned, 1)
	assert.Equal(t, p.ID, f.events.returned[0].Items[0].ProductID)
	assert.Equal(t, 2, f.events.returned[0].Items[0].Quantity)

	_, err = f.orders.ReturnOrder(ctx, o.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCancel_ReleasesStockAndFlagsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "50", 10)
	o := f.order(t)

	_, err := f.orders.AddLine(ctx, o.ID, p.ID, 4)
	require.NoError(t, err)
	_, err = f.orders.RecordPayment(ctx, o.ID, models.PaymentMethodCash, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, 6, f.stock(t, p.ID))

	result, err := f.orders.Cancel(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, result.Order.Order.Status)
	assert.True(t, result.RefundDue.Equal(dec("10")))
	assert.Len(t, result.RefundPayments, 1)
	assert.Equal(t, models.ReservationReleased, result.Order.Reservations[0].State)
	assert.Equal(t, 10, f.stock(t, p.ID))

	require.Len(t, f.events.cancelled, 1)
	assert.True(t, f.events.cancelled[0].RefundDue.Equal(dec("10")))
}

func TestIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 10)

	pending := f.order(t)
	_, err := f.orders.ReturnOrder(ctx, pending.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.orders.StartProcessing(ctx, pending.ID)
	require.NoError(t, err)
	_, err = f.orders.StartProcessing(ctx, pending.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	completed := f.order(t)
	_, err = f.orders.AddLine(ctx, completed.ID, p.ID, 1)
	require.NoError(t, err)
	_, err = f.orders.RecordPayment(ctx, completed.ID, models.PaymentMethodCash, dec("10"))
	require.NoError(t, err)

	_, err = f.orders.Cancel(ctx, completed.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = f.orders.AddLine(ctx, completed.ID, p.ID, 1)
	assert.ErrorIs(t, err, models.ErrOrderNotEditable)
	_, err = f.orders.ApplyDiscount(ctx, completed.ID, dec("1"))
	assert.ErrorIs(t, err, models.ErrOrderNotEditable)

	cancelled := f.order(t)
	_, err = f.orders.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	_, err = f.orders.RecordPayment(ctx, cancelled.ID, models.PaymentMethodCash, dec("1"))
	assert.ErrorIs(t, err, models.ErrOrderNotEditable)
	_, err = f.orders.StartProcessing(ctx, cancelled.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	view, err := f.orders.GetOrder(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, view.Order.Status)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "10", 10)

	empty := f.order(t)
	require.NoError(t, f.orders.DeleteOrder(ctx, empty.ID))
	_, err := f.orders.GetOrder(ctx, empty.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	withLines := f.order(t)
	_, err = f.orders.AddLine(ctx, withLines.ID, p.ID, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, f.orders.DeleteOrder(ctx, withLines.ID), models.ErrOrderNotEditable)

	_, err = f.orders.Cancel(ctx, withLines.ID)
	require.NoError(t, err)
	require.NoError(t, f.orders.DeleteOrder(ctx, withLines.ID))

	f.repoView(t, func(ctx context.Context, repo store.Repository) error {
		reservations, err := repo.ListReservations(ctx, withLines.ID)
		assert.Empty(t, reservations)
		return err
	})
}

func TestMutation_BusyWhenOrderLocked(t *testing.T) {
	f := newFixtureWithLockTimeout(t, 20*time.Millisecond)
	ctx := context.Background()
	p := f.product(t, "10", 10)
	o := f.order(t)

	release, err := f.locker.Lock(ctx, lock.OrderKey(o.ID))
	require.NoError(t, err)
	defer release()

	_, err = f.orders.AddLine(ctx, o.ID, p.ID, 1)
	assert.ErrorIs(t, err, models.ErrBusy)
	assert.True(t, models.IsRetryable(err))
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestMutation_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.StartProcessing(context.Background(), 4242)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "insufficient_stock", failureReason(models.ErrInsufficientStock))
	assert.Equal(t, "cancelled", failureReason(context.Canceled))
	assert.Equal(t, "internal", failureReason(errors.New("boom")))
}
