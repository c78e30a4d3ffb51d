package models

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Domain errors surfaced to callers
var (
	ErrNotFound             = NewDomainError("NOT_FOUND", "resource not found")
	ErrInsufficientStock    = NewDomainError("INSUFFICIENT_STOCK", "insufficient stock")
	ErrInvalidTransition    = NewDomainError("INVALID_TRANSITION", "invalid order status transition")
	ErrOrderNotEditable     = NewDomainError("ORDER_NOT_EDITABLE", "order can no longer be modified")
	ErrInvalidDiscount      = NewDomainError("INVALID_DISCOUNT", "discount exceeds subtotal")
	ErrOverpayment          = NewDomainError("OVERPAYMENT", "payment exceeds remaining balance")
	ErrInactiveUser         = NewDomainError("INACTIVE_USER", "user is not active")
	ErrInvalidPeriod        = NewDomainError("INVALID_PERIOD", "invalid commission period")
	ErrInvalidRate          = NewDomainError("INVALID_RATE", "commission rate must be between 0 and 100")
	ErrInvalidState         = NewDomainError("INVALID_STATE", "operation not allowed in current state")
	ErrInvalidQuantity      = NewDomainError("INVALID_QUANTITY", "quantity must be at least 1")
	ErrInvalidAmount        = NewDomainError("INVALID_AMOUNT", "amount must be greater than zero")
	ErrInvalidPaymentMethod = NewDomainError("INVALID_PAYMENT_METHOD", "unknown payment method")
	ErrBusy                 = NewDomainError("BUSY", "resource is busy, retry later")
	ErrConflict             = NewDomainError("CONFLICT", "resource was modified concurrently")
	ErrReferentialConflict  = NewDomainError("REFERENTIAL_CONFLICT", "resource is still referenced")
	ErrProtectedResource    = NewDomainError("PROTECTED_RESOURCE", "resource is protected")
	ErrValidation           = NewDomainError("VALIDATION", "validation failed")
	ErrInvalidCredentials   = NewDomainError("INVALID_CREDENTIALS", "invalid username or password")
)

// ErrorCode returns the code of the first DomainError in err's chain, or "" if there is none.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrConflict)
}
