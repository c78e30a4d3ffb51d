package service

import (
	"context"
	"fmt"

	"pos-service/internal/lock"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService runs the order lifecycle. Every mutation holds the order's
// keyed lock and runs in one transaction that also locks the order row.
type OrderService struct {
	backend   store.Backend
	locker    lock.Locker
	inventory *InventoryLedger
	payments  *PaymentLedger
	publisher EventPublisher
	now       Clock
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	backend store.Backend,
	locker lock.Locker,
	inventory *InventoryLedger,
	payments *PaymentLedger,
	publisher EventPublisher,
	now Clock,
) *OrderService {
	return &OrderService{
		backend:   backend,
		locker:    locker,
		inventory: inventory,
		payments:  payments,
		publisher: publisher,
		now:       now.orDefault(),
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to open an order
type CreateOrderRequest struct {
	CustomerID     *int64  `json:"customer_id,omitempty"`
	UserID         int64   `json:"user_id"`
	Notes          *string `json:"notes,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// PaymentResult is a recorded payment and the order after it
type PaymentResult struct {
	Payment   *models.Payment   `json:"payment"`
	Order     *models.OrderView `json:"order"`
	Completed bool              `json:"completed"`
}

// CancelResult lists the payments that need a manual refund. No money is moved.
type CancelResult struct {
	Order          *models.OrderView `json:"order"`
	RefundDue      decimal.Decimal   `json:"refund_due"`
	RefundPayments []models.Payment  `json:"refund_payments"`
}

type orderTx func(ctx context.Context, repo store.Repository, order *models.Order) error

// mutate serializes fn on the order: keyed lock first, then a transaction
// holding the order row
func (s *OrderService) mutate(ctx context.Context, op string, orderID int64, fn orderTx) error {
	release, err := s.locker.Lock(ctx, lock.OrderKey(orderID))
	if err != nil {
		util.OrderOperationsFailed.WithLabelValues(op, failureReason(err)).Inc()
		return err
	}
	defer release()

	err = s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		return fn(ctx, repo, order)
	})
	if err != nil {
		util.OrderOperationsFailed.WithLabelValues(op, failureReason(err)).Inc()
		s.logger.Debug("Order operation rejected",
			zap.String("operation", op),
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
	return err
}

func loadView(ctx context.Context, repo store.Repository, order *models.Order) (*models.OrderView, error) {
	details, err := repo.ListOrderDetails(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	payments, err := repo.ListPayments(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	reservations, err := repo.ListReservations(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &models.OrderView{
		Order:        order,
		Details:      details,
		Payments:     payments,
		Reservations: reservations,
	}, nil
}

func requireEditable(order *models.Order) error {
	if !order.Status.IsEditable() {
		return fmt.Errorf("%w: order %d is %s", models.ErrOrderNotEditable, order.ID, order.Status)
	}
	return nil
}

// CreateOrder opens a pending order. A repeated idempotency key returns the
// order created the first time.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	var view *models.OrderView
	created := false

	err := s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if req.IdempotencyKey != "" {
			existing, err := repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("failed to check idempotency: %w", err)
			}
			if existing != nil {
				s.logger.Info("Duplicate order request detected",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.Int64("order_id", existing.ID))
				view, err = loadView(ctx, repo, existing)
				return err
			}
		}

		user, err := repo.GetUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return fmt.Errorf("%w: user %d", models.ErrInactiveUser, user.ID)
		}
		if req.CustomerID != nil {
			if _, err := repo.GetCustomer(ctx, *req.CustomerID); err != nil {
				return err
			}
		}

		order, err := models.NewOrder(req.CustomerID, req.UserID, req.Notes, s.now().UTC())
		if err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			order.IdempotencyKey = &key
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		created = true
		view = &models.OrderView{Order: order}
		return nil
	})
	if err != nil {
		util.OrderOperationsFailed.WithLabelValues("create", failureReason(err)).Inc()
		return nil, err
	}
	if !created {
		return view, nil
	}

	order := view.Order
	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created", zap.Int64("order_id", order.ID), zap.Int64("user_id", order.UserID))

	event := &models.OrderCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCreated, order.CreatedAt),
		OrderID:    order.ID,
		UserID:     order.UserID,
		CustomerID: order.CustomerID,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return view, nil
}

// GetOrder returns an order with its lines, payments and reservations
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.OrderView, error) {
	var view *models.OrderView
	err := s.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		order, err := repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		view, err = loadView(ctx, repo, order)
		return err
	})
	return view, err
}

// AddLine reserves stock, snapshots the product's prices onto a new line and
// recomputes the totals
func (s *OrderService) AddLine(ctx context.Context, orderID, productID int64, quantity int) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AddLine")
	defer span.End()

	if quantity < 1 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidQuantity, quantity)
	}

	var view *models.OrderView
	err := s.mutate(ctx, "add_line", orderID, func(ctx context.Context, repo store.Repository, order *models.Order) error {
		if err := requireEditable(order); err != nil {
			return err
		}

		product, err := repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		line := models.CapturePricing(product, now).Line(order.ID, quantity)
		if err := repo.CreateOrderDetail(ctx, &line); err != nil {
			return fmt.Errorf("failed to create order line: %w", err)
		}
		if _, err := s.inventory.Reserve(ctx, repo, order.ID, line.ID, productID, quantity); err != nil {
			return err
		}

		details, err := repo.ListOrderDetails(ctx, order.ID)
		if err != nil {
			return err
		}
		order.Recalculate(details)
		order.UpdatedAt = now
		if err := repo.UpdateOrder(ctx, order); err != nil {
			return err
		}

		view, err = loadView(ctx, repo, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.inventory.Invalidate(ctx, productID)
	s.logger.Info("Line added",
		zap.Int64("order_id", orderID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.String("total", view.Order.TotalAmount.String()))
	return view, nil
}

// ApplyDiscount sets the order discount. It must not exceed the subtotal, nor
// push the total below what has already been paid.
func (s *OrderService) ApplyDiscount(ctx context.Context, orderID int64, amount decimal.Decimal) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ApplyDiscount")
	defer span.End()

	var view *models.OrderView
	err := s.mutate(ctx, "apply_discount", orderID, func(ctx context.Context, repo store.Repository, order *models.Order) error {
		if err := requireEditable(order); err != nil {
			return err
		}
		if amount.IsNegative() || !models.WholeCents(amount) || amount.GreaterThan(order.Subtotal) {
			return fmt.Errorf("%w: discount=%s, subtotal=%s",
				models.ErrInvalidDiscount, amount, order.Subtotal.StringFixed(2))
		}

		paid, err := s.payments.Paid(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		total := order.Subtotal.Sub(amount)
		if paid.GreaterThan(total) {
			return fmt.Errorf("%w: total %s would fall below paid %s",
				models.ErrInvalidDiscount, total.StringFixed(2), paid.StringFixed(2))
		}

		order.Discount = amount
		order.TotalAmount = total
		order.UpdatedAt = s.now().UTC()
		if err := repo.UpdateOrder(ctx, order); err != nil {
			return err
		}

		view, err = loadView(ctx, repo, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// RecordPayment records a payment; when payments cover the total the order
// completes and its reservations are committed in the same transaction
func (s *OrderService) RecordPayment(ctx context.Context, orderID int64, method models.PaymentMethod, amount decimal.Decimal) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RecordPayment")
	defer span.End()

	if err := ValidatePayment(method, amount); err != nil {
		util.PaymentsRejectedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	var result *PaymentResult
	err := s.mutate(ctx, "record_payment", orderID, func(ctx context.Context, repo store.Repository, order *models.Order) error {
		if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusReturned {
			return fmt.Errorf("%w: order %d is %s", models.ErrOrderNotEditable, order.ID, order.Status)
		}

		payment, paid, err := s.payments.Record(ctx, repo, order, method, amount)
		if err != nil {
			return err
		}

		completed := false
		if paid.GreaterThanOrEqual(order.TotalAmount) {
			if err := s.complete(ctx, repo, order); err != nil {
				return err
			}
			completed = true
		}

		view, err := loadView(ctx, repo, order)
		if err != nil {
			return err
		}
		result = &PaymentResult{Payment: payment, Order: view, Completed: completed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Completed {
		s.afterCompleted(ctx, result.Order)
	}
	return result, nil
}

// StartProcessing moves a pending order to processing
func (s *OrderService) StartProcessing(ctx context.Context, orderID int64) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.StartProcessing")
	defer span.End()

	var view *models.OrderView
	err := s.mutate(ctx, "start_processing", orderID, func(ctx context.Context, repo store.Repository, order *models.Order) error {
		if err := order.TransitionTo(models.OrderStatusProcessing); err != nil {
			return err
		}
		order.UpdatedAt = s.now().UTC()
		if err := repo.UpdateOrder(ctx, order); err != nil {
			return err
		}

		var err error
		view, err = loadView(ctx, repo, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CompleteOrder completes an order whose balance is already zero, such as a
// fully discounted one. It needs at least one line.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID int64) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CompleteOrder")
	defer span.End()

	var view *models.OrderView
	err := s.mutate(ctx, "complete", orderID, func(ctx context.Context, repo store.Repository, order *models.Order) error {
		if !order.Status.CanTransitionTo(models.OrderStatusCompleted) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, models.OrderStatusCompleted)
		}

		details, err := repo.ListOrderDetails(ctx, order.ID)
		if err != nil {
			return err
		}
		if len(details) == 0 {
			return fmt.Errorf("%w: order %d has no lines", models.ErrInvalidTransition, order.ID)
		}

		paid, err := s.payments.Paid(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		if balance := order.Balance(paid); balance.IsPositive() {
			return fmt.Errorf("%w: order %d has %s outstanding",
				models.ErrInvalidTransition, order.ID, balance.StringFixed(2))
		}

		if err := s.complete(ctx, repo, order); err != nil {
			return err
		}
		view, err = loadView(ctx, repo, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCompleted(ctx, view)
	return view, nil
}

// complete transitions to Completed, commits every active reservation and
// credits the customer
func (s *OrderService) complete(ctx context.Context, repo store.Repository, order *models.Order) error {
	if err := order.TransitionTo(models.OrderStatusCompleted); err != nil {
		return err
	}

	reservations, err := repo.ListReservations(ctx, order.ID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		if res.State != models.ReservationActive {
			continue
		}
		if err := s.inventory.Commit(ctx, repo, res.ID); err != nil {
			return err
		}
	}

	if order.CustomerID != nil {
		if err := repo.AddCustomerPurchases(ctx, *order.CustomerID, order.TotalAmount); err != nil {
			return err
		}
	}

	order.UpdatedAt = s.now().UTC()
	return repo.UpdateOrder(ctx, order)
}

func (s *OrderService) afterCompleted(ctx context.Context, view *models.OrderView) {
	order := view.Order
	util.OrdersCompletedTotal.Inc()
	s.logger.Info("Order completed",
		zap.Int64("order_id", order.ID),
		zap.String("total", order.TotalAmount.String()))

	event := &models.OrderCompletedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCompleted, order.UpdatedAt),
		OrderID:     order.ID,
		UserID:      order.UserID,
		CustomerID:  order.CustomerID,
		Subtotal:    order.Subtotal,
		Discount:    order.Discount,
		TotalAmount: order.TotalAmount,
		Items:       models.ItemsFromDetails(view.Details),
		Payments:    models.PaymentsData(view.Payments),
	}
	if err := s.publisher.PublishOrderCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
	}
}

// Cancel releases every active reservation and cancels the order. Recorded
// payments stay in place and are reported for manual refund.
func (s *OrderService) Cancel(ctx context.Context, orderID int64) (*CancelResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	var result *CancelResult
	var released []int64
	err := s.mutate(ctx, "cancel", orderID, func(ctx context.Context, repo store.Repository, order *models.Order) error {
		if err := order.TransitionTo(models.OrderStatusCancelled); err != nil {
			return err
		}

		reservations, err := repo.ListReservations(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			if res.State != models.ReservationActive {
				continue
			}
			if err := s.inventory.Release(ctx, repo, res.ID); err != nil {
				return err
			}
			released = append(released, res.ProductID)
		}

		order.UpdatedAt = s.now().UTC()
		if err := repo.UpdateOrder(ctx, order); err != nil {
			return err
		}

		view, err := loadView(ctx, repo, order)
		if err != nil {
			return err
		}
		result = &CancelResult{
			Order:          view,
			RefundDue:      view.Paid(),
			RefundPayments: view.Payments,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.inventory.Invalidate(ctx, released...)
	util.OrdersCancelledTotal.Inc()

	fields := []zap.Field{zap.Int64("order_id", orderID)}
	if result.RefundDue.IsPositive() {
		fields = append(fields, zap.String("refund_due", result.RefundDue.String()))
		s.logger.Warn("Order cancelled with payments flagged for manual refund", fields...)
	} else {
		s.logger.Info("Order cancelled", fields...)
	}

	event := &models.OrderCancelledEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderCancelled, result.Order.Order.UpdatedAt),
		OrderID:        orderID,
		RefundDue:      result.RefundDue,
		RefundPayments: models.PaymentsData(result.RefundPayments),
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return result, nil
}

// ReturnOrder puts every line of a completed order back into stock as a new
// positive adjustment and reverses the customer's purchase total
func (s *OrderService) ReturnOrder(ctx context.Context, orderID int64) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ReturnOrder")
	defer span.End()

	var view *models.OrderView
	var restocked []int64
	err := s.mutate(ctx, "return", orderID, func(ctx context.Context, repo store.Repository, order *models.Order) error {
		if err := order.TransitionTo(models.OrderStatusReturned); err != nil {
			return err
		}

		details, err := repo.ListOrderDetails(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, d := range details {
			if _, err := s.inventory.Restock(ctx, repo, d.ProductID, d.Quantity); err != nil {
				return err
			}
			restocked = append(restocked, d.ProductID)
		}

		if order.CustomerID != nil {
			if err := repo.AddCustomerPurchases(ctx, *order.CustomerID, order.TotalAmount.Neg()); err != nil {
				return err
			}
		}

		order.UpdatedAt = s.now().UTC()
		if err := repo.UpdateOrder(ctx, order); err != nil {
			return err
		}

		view, err = loadView(ctx, repo, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.inventory.Invalidate(ctx, restocked...)
	util.OrdersReturnedTotal.Inc()
	s.logger.Info("Order returned", zap.Int64("order_id", orderID))

	event := &models.OrderReturnedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderReturned, view.Order.UpdatedAt),
		OrderID:     orderID,
		TotalAmount: view.Order.TotalAmount,
		Items:       models.ItemsFromDetails(view.Details),
	}
	if err := s.publisher.PublishOrderReturned(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderReturned event", zap.Error(err))
	}

	return view, nil
}

// DeleteOrder deletes a cancelled order, or a pending one with no lines
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder")
	defer span.End()

	err := s.mutate(ctx, "delete", orderID, func(ctx context.Context, repo store.Repository, order *models.Order) error {
		switch order.Status {
		case models.OrderStatusCancelled:
		case models.OrderStatusPending:
			details, err := repo.ListOrderDetails(ctx, order.ID)
			if err != nil {
				return err
			}
			if len(details) > 0 {
				return fmt.Errorf("%w: pending order %d has lines, cancel it first", models.ErrOrderNotEditable, order.ID)
			}
		default:
			return fmt.Errorf("%w: order %d is %s", models.ErrOrderNotEditable, order.ID, order.Status)
		}

		return repo.DeleteOrder(ctx, order.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Order deleted", zap.Int64("order_id", orderID))
	return nil
}
