package service

import (
	"context"
	"errors"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService manages products, categories, customers, roles and users
type CatalogService struct {
	backend   store.Backend
	inventory *InventoryLedger
	now       Clock
	logger    *zap.Logger
}

// NewCatalogService creates a CatalogService; inventory may be nil
func NewCatalogService(backend store.Backend, inventory *InventoryLedger, now Clock) *CatalogService {
	return &CatalogService{
		backend:   backend,
		inventory: inventory,
		now:       now.orDefault(),
		logger:    util.GetLogger(),
	}
}

// CreateCategory adds a category
func (s *CatalogService) CreateCategory(ctx context.Context, name string, description *string) (*models.Category, error) {
	category, err := models.NewCategory(name, description)
	if err != nil {
		return nil, err
	}
	err = s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		return repo.CreateCategory(ctx, category)
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory removes a category that holds no products
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	return s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		n, err := repo.CountProductsInCategory(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: category %d has %d products", models.ErrReferentialConflict, id, n)
		}
		return repo.DeleteCategory(ctx, id)
	})
}

// CreateProduct adds a product to an existing category
func (s *CatalogService) CreateProduct(ctx context.Context, params models.ProductParams) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	product, err := models.NewProduct(params, s.now().UTC())
	if err != nil {
		return nil, err
	}
	err = s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.GetCategory(ctx, product.CategoryID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("%w: category %d does not exist", models.ErrReferentialConflict, product.CategoryID)
			}
			return err
		}
		return repo.CreateProduct(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("name", product.Name),
		zap.Int("stock", product.StockQuantity))
	return product, nil
}

// GetProduct retrieves a product
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product *models.Product
	err := s.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		product, err = repo.GetProduct(ctx, id)
		return err
	})
	return product, err
}

// ListProducts returns every product ordered by id
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		products, err = repo.ListProducts(ctx)
		return err
	})
	return products, err
}

// UpdateProductPrices changes the prices future order lines will capture.
// Existing lines keep their snapshot.
func (s *CatalogService) UpdateProductPrices(ctx context.Context, id int64, cost, sell decimal.Decimal) (*models.Product, error) {
	if err := models.ValidatePrices(cost, sell); err != nil {
		return nil, err
	}

	var product *models.Product
	err := s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if err := repo.UpdateProductPrices(ctx, id, cost, sell, s.now().UTC()); err != nil {
			return err
		}
		var err error
		product, err = repo.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product prices updated",
		zap.Int64("product_id", id),
		zap.String("cost", cost.String()),
		zap.String("sell", sell.String()))
	return product, nil
}

// DeleteProduct removes a product no order line refers to
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	err := s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		used, err := repo.IsProductReferenced(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%w: product %d is referenced by order lines", models.ErrReferentialConflict, id)
		}
		return repo.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	if s.inventory != nil {
		s.inventory.Invalidate(ctx, id)
	}
	return nil
}

// CreateCustomer registers a customer
func (s *CatalogService) CreateCustomer(ctx context.Context, params models.CustomerParams) (*models.Customer, error) {
	customer, err := models.NewCustomer(params, s.now().UTC())
	if err != nil {
		return nil, err
	}
	err = s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		return repo.CreateCustomer(ctx, customer)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// GetCustomer retrieves a customer
func (s *CatalogService) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var customer *models.Customer
	err := s.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		customer, err = repo.GetCustomer(ctx, id)
		return err
	})
	return customer, err
}

// CreateRole adds a role
func (s *CatalogService) CreateRole(ctx context.Context, name string, description *string) (*models.Role, error) {
	role, err := models.NewRole(name, description)
	if err != nil {
		return nil, err
	}
	err = s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		return repo.CreateRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole retrieves a role
func (s *CatalogService) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	var role *models.Role
	err := s.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		role, err = repo.GetRole(ctx, id)
		return err
	})
	return role, err
}

// DeleteRole removes a role no user holds
func (s *CatalogService) DeleteRole(ctx context.Context, id int64) error {
	return s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		n, err := repo.CountUsersInRole(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: role %d has %d users", models.ErrReferentialConflict, id, n)
		}
		return repo.DeleteRole(ctx, id)
	})
}

// CreateUser adds an active user holding an existing role
func (s *CatalogService) CreateUser(ctx context.Context, fullName, username, password string, roleID int64) (*models.User, error) {
	user, err := models.NewUser(fullName, username, password, roleID)
	if err != nil {
		return nil, err
	}
	err = s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.GetRole(ctx, roleID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("%w: role %d does not exist", models.ErrReferentialConflict, roleID)
			}
			return err
		}
		return repo.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User created", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// GetUser retrieves a user
func (s *CatalogService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user *models.User
	err := s.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		user, err = repo.GetUser(ctx, id)
		return err
	})
	return user, err
}

// SetUserActive enables or disables a user. Inactive users cannot open orders.
func (s *CatalogService) SetUserActive(ctx context.Context, id int64, active bool) error {
	err := s.backend.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		return repo.SetUserActive(ctx, id, active)
	})
	if err != nil {
		return err
	}
	s.logger.Info("User active flag changed", zap.Int64("user_id", id), zap.Bool("active", active))
	return nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *CatalogService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user *models.User
	err := s.backend.View(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		user, err = repo.GetUserByUsername(ctx, username)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, models.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: user %d", models.ErrInactiveUser, user.ID)
	}
	return user, nil
}
