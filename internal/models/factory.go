package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	phonePattern      = regexp.MustCompile(`^[\d\-\+\(\)\s]+$`)
	emailPattern      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	settingKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._]+$`)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func checkLen(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min {
		if min == 1 {
			return invalid("%s is required", field)
		}
		return invalid("%s must be at least %d characters", field, min)
	}
	if n > max {
		return invalid("%s cannot exceed %d characters", field, max)
	}
	return nil
}

func checkOptionalLen(field string, value *string, max int) error {
	if value == nil {
		return nil
	}
	return checkLen(field, *value, 0, max)
}

// NewCategory builds a category after validating its fields.
func NewCategory(name string, description *string) (*Category, error) {
	name = strings.TrimSpace(name)
	if err := checkLen("category name", name, 1, 100); err != nil {
		return nil, err
	}
	if err := checkOptionalLen("description", description, 500); err != nil {
		return nil, err
	}
	return &Category{Name: name, Description: description}, nil
}

// ProductParams are the inputs to NewProduct; Description is optional.
type ProductParams struct {
	Name          string
	CategoryID    int64
	BrandName     string
	Description   *string
	CostPrice     decimal.Decimal
	SellPrice     decimal.Decimal
	StockQuantity int
	IsDraft       bool
}

// NewProduct builds a product stamped with now.
func NewProduct(p ProductParams, now time.Time) (*Product, error) {
	name := strings.TrimSpace(p.Name)
	if err := checkLen("product name", name, 1, 200); err != nil {
		return nil, err
	}
	if p.CategoryID <= 0 {
		return nil, invalid("category is required")
	}
	if err := checkLen("brand name", p.BrandName, 0, 100); err != nil {
		return nil, err
	}
	if err := checkOptionalLen("description", p.Description, 1000); err != nil {
		return nil, err
	}
	if err := ValidatePrices(p.CostPrice, p.SellPrice); err != nil {
		return nil, err
	}
	if p.StockQuantity < 0 {
		return nil, invalid("stock quantity cannot be negative")
	}
	return &Product{
		Name:          name,
		CategoryID:    p.CategoryID,
		BrandName:     p.BrandName,
		Description:   p.Description,
		CostPrice:     p.CostPrice,
		SellPrice:     p.SellPrice,
		StockQuantity: p.StockQuantity,
		IsDraft:       p.IsDraft,
		CreatedAt:     now,
	}, nil
}

// ValidatePrices rejects negative prices and fractions of a cent.
func ValidatePrices(cost, sell decimal.Decimal) error {
	if cost.IsNegative() {
		return invalid("cost price cannot be negative")
	}
	if sell.IsNegative() {
		return invalid("sell price cannot be negative")
	}
	if !WholeCents(cost) || !WholeCents(sell) {
		return invalid("prices must have at most 2 decimal places")
	}
	return nil
}

// CustomerParams are the inputs to NewCustomer; Email and Address are optional.
type CustomerParams struct {
	Name        string
	PhoneNumber string
	Email       *string
	Address     *string
	Type        CustomerType
}

// NewCustomer builds a customer with a zero purchase total.
func NewCustomer(p CustomerParams, now time.Time) (*Customer, error) {
	name := strings.TrimSpace(p.Name)
	if err := checkLen("customer name", name, 1, 150); err != nil {
		return nil, err
	}
	if err := checkLen("phone number", p.PhoneNumber, 1, 15); err != nil {
		return nil, err
	}
	if !phonePattern.MatchString(p.PhoneNumber) {
		return nil, invalid("phone number contains invalid characters")
	}
	if p.Email != nil {
		if err := checkLen("email", *p.Email, 0, 150); err != nil {
			return nil, err
		}
		if !emailPattern.MatchString(*p.Email) {
			return nil, invalid("invalid email address format")
		}
	}
	if err := checkOptionalLen("address", p.Address, 300); err != nil {
		return nil, err
	}
	if p.Type == "" {
		p.Type = CustomerTypeRegular
	}
	if !p.Type.IsValid() {
		return nil, invalid("unknown customer type %q", p.Type)
	}
	return &Customer{
		Name:           name,
		PhoneNumber:    p.PhoneNumber,
		Email:          p.Email,
		Address:        p.Address,
		Type:           p.Type,
		TotalPurchased: decimal.Zero,
		CreatedAt:      now,
	}, nil
}

// NewRole builds a role after validating its fields.
func NewRole(name string, description *string) (*Role, error) {
	name = strings.TrimSpace(name)
	if err := checkLen("role name", name, 1, 100); err != nil {
		return nil, err
	}
	if err := checkOptionalLen("description", description, 500); err != nil {
		return nil, err
	}
	return &Role{Name: name, Description: description}, nil
}

// ValidateUsername enforces 3-50 characters of letters, digits and underscores.
func ValidateUsername(username string) error {
	if err := checkLen("username", username, 3, 50); err != nil {
		return err
	}
	if !usernamePattern.MatchString(username) {
		return invalid("username can only contain letters, numbers, and underscores")
	}
	return nil
}

// NewUser builds an active user, hashing password with bcrypt.
func NewUser(fullName, username, password string, roleID int64) (*User, error) {
	fullName = strings.TrimSpace(fullName)
	if err := checkLen("full name", fullName, 1, 150); err != nil {
		return nil, err
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if roleID <= 0 {
		return nil, invalid("role is required")
	}
	if password == "" {
		return nil, invalid("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &User{
		FullName:     fullName,
		Username:     username,
		PasswordHash: string(hash),
		RoleID:       roleID,
		IsActive:     true,
	}, nil
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// NewOrder opens a pending order with zero totals.
func NewOrder(customerID *int64, userID int64, notes *string, now time.Time) (*Order, error) {
	if err := checkOptionalLen("notes", notes, 1000); err != nil {
		return nil, err
	}
	return &Order{
		CustomerID:  customerID,
		UserID:      userID,
		OrderDate:   now,
		Status:      OrderStatusPending,
		Subtotal:    decimal.Zero,
		Discount:    decimal.Zero,
		TotalAmount: decimal.Zero,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ValidateSettingKey enforces the key pattern and length.
func ValidateSettingKey(key string) error {
	if err := checkLen("setting key", key, 1, 100); err != nil {
		return err
	}
	if !settingKeyPattern.MatchString(key) {
		return invalid("key can only contain letters, numbers, dots, and underscores")
	}
	return nil
}

// ValidateCommissionPeriod rejects months outside 1-12 and years outside 2000-9999.
func ValidateCommissionPeriod(month, year int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	if year < 2000 || year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}
	return nil
}

// PeriodBounds returns [start, end) of the month in UTC.
func PeriodBounds(month, year int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
