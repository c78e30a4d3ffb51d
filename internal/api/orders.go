package api

import (
	"net/http"

	"pos-service/internal/models"
	"pos-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	CustomerID     *int64  `json:"customer_id"`
	Notes          *string `json:"notes"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type addLineRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type paymentRequest struct {
	Method models.PaymentMethod `json:"method" binding:"required"`
	Amount decimal.Decimal      `json:"amount"`
}

// createOrder opens an order for the authenticated user
func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	view, err := h.Orders.CreateOrder(c.Request.Context(), &service.CreateOrderRequest{
		CustomerID:     req.CustomerID,
		UserID:         actingUser(c),
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	view, err := h.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.Orders.DeleteOrder(c.Request.Context(), orderID); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) addLine(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req addLineRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.Orders.AddLine(c.Request.Context(), orderID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *Handler) applyDiscount(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req amountRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.Orders.ApplyDiscount(c.Request.Context(), orderID, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) recordPayment(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req paymentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.Orders.RecordPayment(c.Request.Context(), orderID, req.Method, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) startProcessing(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	view, err := h.Orders.StartProcessing(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) completeOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	view, err := h.Orders.CompleteOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.Orders.Cancel(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) returnOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	view, err := h.Orders.ReturnOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
