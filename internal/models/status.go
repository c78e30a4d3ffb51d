package models

import "fmt"

// OrderStatus is the order lifecycle state
type OrderStatus string

// Order statuses
const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusReturned   OrderStatus = "RETURNED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusReturned},
}

func (s OrderStatus) String() string { return string(s) }

// IsValid reports whether s is a known status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled, OrderStatusReturned:
		return true
	default:
		return false
	}
}

// IsEditable reports whether lines, discounts and payments may still change.
func (s OrderStatus) IsEditable() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

// CanTransitionTo reports whether s → next is an edge of the order state graph.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to next, leaving it untouched on an illegal edge.
func (o *Order) TransitionTo(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

// ReservationState tracks whether a reservation can still be reversed
type ReservationState string

// Reservation states
const (
	ReservationActive    ReservationState = "ACTIVE"
	ReservationCommitted ReservationState = "COMMITTED"
	ReservationReleased  ReservationState = "RELEASED"
)

// PaymentMethod is how a payment was tendered
type PaymentMethod string

// Payment methods
const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentMethodInstallment  PaymentMethod = "INSTALLMENT"
)

// IsValid reports whether m is a known payment method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCreditCard, PaymentMethodInstallment:
		return true
	default:
		return false
	}
}

// CustomerType drives downstream discount policy
type CustomerType string

// Customer types
const (
	CustomerTypeRegular CustomerType = "REGULAR"
	CustomerTypeVIP     CustomerType = "VIP"
	CustomerTypeStudent CustomerType = "STUDENT"
)

// IsValid reports whether t is a known customer type.
func (t CustomerType) IsValid() bool {
	switch t {
	case CustomerTypeRegular, CustomerTypeVIP, CustomerTypeStudent:
		return true
	default:
		return false
	}
}

// SettingType is the declared type of an AppSetting value
type SettingType string

// Setting value types
const (
	SettingTypeString  SettingType = "STRING"
	SettingTypeNumber  SettingType = "NUMBER"
	SettingTypeDecimal SettingType = "DECIMAL"
	SettingTypeBool    SettingType = "BOOL"
	SettingTypeJSON    SettingType = "JSON"
)

// IsValid reports whether t is a known setting type.
func (t SettingType) IsValid() bool {
	switch t {
	case SettingTypeString, SettingTypeNumber, SettingTypeDecimal, SettingTypeBool, SettingTypeJSON:
		return true
	default:
		return false
	}
}

// Well-known setting keys
const (
	SettingStoreName             = "Store.Name"
	SettingStorePhone            = "Store.Phone"
	SettingStoreAddress          = "Store.Address"
	SettingInvoiceFooter         = "Invoice.Footer"
	SettingAutoPrintReceipt      = "POS.AutoPrint"
	SettingDefaultCurrency       = "Currency.Default"
	SettingCommissionDefaultRate = "Commission.DefaultRate"
)
