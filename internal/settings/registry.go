// Package settings reads and writes the string-encoded application settings.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultCurrency is used when Currency.Default is unset
const DefaultCurrency = "USD"

// Registry is the typed view over app_settings
type Registry struct {
	backend store.Backend
	now     func() time.Time
	logger  *zap.Logger
}

// NewRegistry creates a Registry; now stamps UpdatedAt
func NewRegistry(backend store.Backend, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{backend: backend, now: now, logger: util.GetLogger()}
}

// Get returns the raw value and its declared type. A nil value reads as "".
func (r *Registry) Get(ctx context.Context, key string) (string, models.SettingType, error) {
	s, err := r.Setting(ctx, key)
	if err != nil {
		return "", "", err
	}
	if s.Value == nil {
		return "", s.ValueType, nil
	}
	return *s.Value, s.ValueType, nil
}

// Setting returns the full row for key
func (r *Registry) Setting(ctx context.Context, key string) (*models.AppSetting, error) {
	var s *models.AppSetting
	err := r.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		s, err = repo.GetSetting(ctx, key)
		return err
	})
	return s, err
}

// List returns every setting ordered by category and key
func (r *Registry) List(ctx context.Context) ([]models.AppSetting, error) {
	var out []models.AppSetting
	err := r.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		out, err = repo.ListSettings(ctx)
		return err
	})
	return out, err
}

func (r *Registry) typed(ctx context.Context, key string, want models.SettingType) (string, error) {
	value, typ, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if typ != want {
		return "", fmt.Errorf("%w: setting %q is %s, not %s", models.ErrValidation, key, typ, want)
	}
	return value, nil
}

// String returns a STRING setting, or def when the key is absent
func (r *Registry) String(ctx context.Context, key, def string) (string, error) {
	value, err := r.typed(ctx, key, models.SettingTypeString)
	if errors.Is(err, models.ErrNotFound) {
		return def, nil
	}
	return value, err
}

// Int returns a NUMBER setting
func (r *Registry) Int(ctx context.Context, key string) (int64, error) {
	value, err := r.typed(ctx, key, models.SettingTypeNumber)
	if err != nil {
		return 0, err
	}
	return parseNumber(key, value)
}

// Decimal returns a DECIMAL setting
func (r *Registry) Decimal(ctx context.Context, key string) (decimal.Decimal, error) {
	value, err := r.typed(ctx, key, models.SettingTypeDecimal)
	if err != nil {
		return decimal.Zero, err
	}
	return parseDecimal(key, value)
}

// Bool returns a BOOL setting, or def when the key is absent
func (r *Registry) Bool(ctx context.Context, key string, def bool) (bool, error) {
	value, err := r.typed(ctx, key, models.SettingTypeBool)
	if errors.Is(err, models.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return false, err
	}
	return parseBool(key, value)
}

// JSON decodes a JSON setting into dst
func (r *Registry) JSON(ctx context.Context, key string, dst interface{}) error {
	value, err := r.typed(ctx, key, models.SettingTypeJSON)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return fmt.Errorf("%w: setting %q: %v", models.ErrValidation, key, err)
	}
	return nil
}

// SetRequest describes a write; Category and Description are optional
type SetRequest struct {
	Key         string             `json:"key"`
	Value       *string            `json:"value"`
	Type        models.SettingType `json:"value_type"`
	Category    *string            `json:"category,omitempty"`
	Description *string            `json:"description,omitempty"`
}

func (req *SetRequest) validate() error {
	if err := models.ValidateSettingKey(req.Key); err != nil {
		return err
	}
	if req.Type == "" {
		req.Type = models.SettingTypeString
	}
	if !req.Type.IsValid() {
		return fmt.Errorf("%w: unknown value type %q", models.ErrValidation, req.Type)
	}
	if req.Value != nil {
		if utf8.RuneCountInString(*req.Value) > 1000 {
			return fmt.Errorf("%w: value cannot exceed 1000 characters", models.ErrValidation)
		}
		if err := checkValue(req.Key, req.Type, *req.Value); err != nil {
			return err
		}
	}
	if req.Category != nil && utf8.RuneCountInString(*req.Category) > 50 {
		return fmt.Errorf("%w: category cannot exceed 50 characters", models.ErrValidation)
	}
	if req.Description != nil && utf8.RuneCountInString(*req.Description) > 255 {
		return fmt.Errorf("%w: description cannot exceed 255 characters", models.ErrValidation)
	}
	return nil
}

// Set inserts or replaces a setting. A system setting keeps its flag and may
// not change its declared type.
func (r *Registry) Set(ctx context.Context, req SetRequest) (*models.AppSetting, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var saved *models.AppSetting
	err := r.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		s := &models.AppSetting{
			Key:         req.Key,
			Value:       req.Value,
			ValueType:   req.Type,
			Category:    req.Category,
			Description: req.Description,
			UpdatedAt:   r.now().UTC(),
		}

		existing, err := repo.GetSetting(ctx, req.Key)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			return err
		default:
			if existing.IsSystem && existing.ValueType != req.Type {
				return fmt.Errorf("%w: system setting %q must stay %s",
					models.ErrProtectedResource, req.Key, existing.ValueType)
			}
			s.IsSystem = existing.IsSystem
		}

		if err := repo.UpsertSetting(ctx, s); err != nil {
			return err
		}
		saved = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Setting updated", zap.String("key", req.Key), zap.String("type", string(req.Type)))
	return saved, nil
}

// Delete removes a non-system setting
func (r *Registry) Delete(ctx context.Context, key string) error {
	return r.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		s, err := repo.GetSetting(ctx, key)
		if err != nil {
			return err
		}
		if s.IsSystem {
			return fmt.Errorf("%w: setting %q is a system setting", models.ErrProtectedResource, key)
		}
		return repo.DeleteSetting(ctx, key)
	})
}

type seed struct {
	key, value, category, description string
	typ                               models.SettingType
}

var defaults = []seed{
	{models.SettingStoreName, "My Store", "Store", "Store name printed on receipts", models.SettingTypeString},
	{models.SettingStorePhone, "", "Store", "Store phone number", models.SettingTypeString},
	{models.SettingStoreAddress, "", "Store", "Store address", models.SettingTypeString},
	{models.SettingInvoiceFooter, "Thank you for your purchase!", "Invoice", "Footer text on receipts", models.SettingTypeString},
	{models.SettingAutoPrintReceipt, "false", "POS", "Print a receipt when an order completes", models.SettingTypeBool},
	{models.SettingDefaultCurrency, DefaultCurrency, "Payment", "Currency code used for display", models.SettingTypeString},
	{models.SettingCommissionDefaultRate, "5", "Commission", "Commission rate in percent", models.SettingTypeDecimal},
}

// SeedDefaults inserts the well-known settings that are missing, as system settings
func (r *Registry) SeedDefaults(ctx context.Context) error {
	return r.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		for _, d := range defaults {
			_, err := repo.GetSetting(ctx, d.key)
			if err == nil {
				continue
			}
			if !errors.Is(err, models.ErrNotFound) {
				return err
			}

			value, category, description := d.value, d.category, d.description
			s := &models.AppSetting{
				Key:         d.key,
				Value:       &value,
				ValueType:   d.typ,
				Category:    &category,
				Description: &description,
				IsSystem:    true,
				UpdatedAt:   r.now().UTC(),
			}
			if err := repo.UpsertSetting(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// FormatAmount renders amount with two decimals and the Currency.Default code
func (r *Registry) FormatAmount(ctx context.Context, amount decimal.Decimal) (string, error) {
	currency, err := r.String(ctx, models.SettingDefaultCurrency, DefaultCurrency)
	if err != nil {
		return "", err
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2)), nil
}

func checkValue(key string, typ models.SettingType, value string) error {
	var err error
	switch typ {
	case models.SettingTypeNumber:
		_, err = parseNumber(key, value)
	case models.SettingTypeDecimal:
		_, err = parseDecimal(key, value)
	case models.SettingTypeBool:
		_, err = parseBool(key, value)
	case models.SettingTypeJSON:
		if !json.Valid([]byte(value)) {
			err = fmt.Errorf("%w: setting %q is not valid JSON", models.ErrValidation, key)
		}
	}
	return err
}

func parseNumber(key, value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: setting %q is not a number", models.ErrValidation, key)
	}
	return n, nil
}

func parseDecimal(key, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: setting %q is not a decimal", models.ErrValidation, key)
	}
	return d, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: setting %q is not a bool", models.ErrValidation, key)
	}
	return b, nil
}
