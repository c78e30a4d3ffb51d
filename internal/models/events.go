package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderCompleted     = "ORDER_COMPLETED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeOrderReturned      = "ORDER_RETURNED"
	EventTypeCommissionComputed = "COMMISSION_COMPUTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is opened
type OrderCreatedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	UserID     int64  `json:"user_id"`
	CustomerID *int64 `json:"customer_id,omitempty"`
}

// OrderCompletedEvent published when payments cover the order total
type OrderCompletedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	CustomerID  *int64          `json:"customer_id,omitempty"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
	Payments    []PaymentData   `json:"payments"`
}

// OrderCancelledEvent published when an order is cancelled. Payments listed
// here are flagged for manual refund; no money has moved.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID        int64           `json:"order_id"`
	RefundDue      decimal.Decimal `json:"refund_due"`
	RefundPayments []PaymentData   `json:"refund_payments"`
}

// OrderReturnedEvent published when a completed order is returned
type OrderReturnedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// CommissionComputedEvent published after a commission upsert
type CommissionComputedEvent struct {
	BaseEvent
	UserID           int64           `json:"user_id"`
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PaymentData represents a payment in events
type PaymentData struct {
	PaymentID int64           `json:"payment_id"`
	Method    PaymentMethod   `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
}

// ItemsFromDetails converts order details to event items.
func ItemsFromDetails(details []OrderDetail) []OrderItemData {
	items := make([]OrderItemData, 0, len(details))
	for _, d := range details {
		items = append(items, OrderItemData{
			ProductID: d.ProductID,
			Quantity:  d.Quantity,
			UnitPrice: d.UnitPrice,
		})
	}
	return items
}

// PaymentsData converts payments to event payloads.
func PaymentsData(payments []Payment) []PaymentData {
	out := make([]PaymentData, 0, len(payments))
	for _, p := range payments {
		out = append(out, PaymentData{PaymentID: p.ID, Method: p.Method, Amount: p.Amount})
	}
	return out
}
