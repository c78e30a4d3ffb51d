package api

import (
	"errors"
	"net/http"

	"pos-service/internal/models"
	"pos-service/internal/settings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type productRequest struct {
	Name          string          `json:"name" binding:"required"`
	CategoryID    int64           `json:"category_id" binding:"required"`
	BrandName     string          `json:"brand_name"`
	Description   *string         `json:"description"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	StockQuantity int             `json:"stock_quantity"`
	IsDraft       bool            `json:"is_draft"`
}

type pricesRequest struct {
	CostPrice decimal.Decimal `json:"cost_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
}

type commissionRequest struct {
	UserID int64            `json:"user_id" binding:"required"`
	Month  int              `json:"month" binding:"required"`
	Year   int              `json:"year" binding:"required"`
	Rate   *decimal.Decimal `json:"rate"`
}

type settingRequest struct {
	Value       *string            `json:"value"`
	Type        models.SettingType `json:"value_type"`
	Category    *string            `json:"category"`
	Description *string            `json:"description"`
}

// login exchanges a username and password for a bearer token
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	user, err := h.Catalog.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	role, err := h.Catalog.GetRole(ctx, user.RoleID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	token, expiresAt, err := h.Issuer.Issue(user.ID, role.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       user,
		"role":       role.Name,
	})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.Catalog.CreateProduct(c.Request.Context(), models.ProductParams{
		Name:          req.Name,
		CategoryID:    req.CategoryID,
		BrandName:     req.BrandName,
		Description:   req.Description,
		CostPrice:     req.CostPrice,
		SellPrice:     req.SellPrice,
		StockQuantity: req.StockQuantity,
		IsDraft:       req.IsDraft,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// productStock reads live stock, through the cache when Redis is configured
func (h *Handler) productStock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	level, err := h.Inventory.StockLevel(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":     id,
		"stock_quantity": level,
	})
}

func (h *Handler) updatePrices(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req pricesRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.Catalog.UpdateProductPrices(c.Request.Context(), id, req.CostPrice, req.SellPrice)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.Catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// computeCommission computes one user's commission for a month. Without a
// rate in the request the Commission.DefaultRate setting applies.
func (h *Handler) computeCommission(c *gin.Context) {
	var req commissionRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	rate := h.DefaultCommissionRate
	if req.Rate != nil {
		rate = *req.Rate
	} else {
		stored, err := h.Settings.Decimal(ctx, models.SettingCommissionDefaultRate)
		switch {
		case err == nil:
			rate = stored
		case !errors.Is(err, models.ErrNotFound):
			h.writeError(c, err)
			return
		}
	}

	commission, err := h.Commissions.Compute(ctx, req.UserID, req.Month, req.Year, rate)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, commission)
}

func (h *Handler) getSetting(c *gin.Context) {
	setting, err := h.Settings.Setting(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, setting)
}

func (h *Handler) putSetting(c *gin.Context) {
	var req settingRequest
	if !bindJSON(c, &req) {
		return
	}

	setting, err := h.Settings.Set(c.Request.Context(), settings.SetRequest{
		Key:         c.Param("key"),
		Value:       req.Value,
		Type:        req.Type,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, setting)
}
