package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/auth"
	"pos-service/internal/service"
	"pos-service/internal/settings"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Services are the engine components the HTTP layer calls into
type Services struct {
	Orders      *service.OrderService
	Catalog     *service.CatalogService
	Inventory   *service.InventoryLedger
	Commissions *service.CommissionCalculator
	Settings    *settings.Registry
	Issuer      *auth.Issuer
	// DefaultCommissionRate applies when neither the request nor the
	// Commission.DefaultRate setting names a rate
	DefaultCommissionRate decimal.Decimal
}

// Handler contains HTTP handlers
type Handler struct {
	Services
	checks map[string]ReadinessCheck
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		Services: services,
		checks:   checks,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", h.login)

	authed := v1.Group("")
	authed.Use(authMiddleware(h.Issuer))
	{
		authed.POST("/orders", h.createOrder)
		authed.GET("/orders/:id", h.getOrder)
		authed.DELETE("/orders/:id", h.deleteOrder)
		authed.POST("/orders/:id/lines", h.addLine)
		authed.POST("/orders/:id/discount", h.applyDiscount)
		authed.POST("/orders/:id/payments", h.recordPayment)
		authed.POST("/orders/:id/process", h.startProcessing)
		authed.POST("/orders/:id/complete", h.completeOrder)
		authed.POST("/orders/:id/cancel", h.cancelOrder)
		authed.POST("/orders/:id/return", h.returnOrder)

		authed.POST("/products", h.createProduct)
		authed.GET("/products/:id", h.getProduct)
		authed.GET("/products/:id/stock", h.productStock)
		authed.PUT("/products/:id/prices", h.updatePrices)
		authed.DELETE("/products/:id", h.deleteProduct)

		authed.POST("/commissions", h.computeCommission)

		authed.GET("/settings/:key", h.getSetting)
		authed.PUT("/settings/:key", h.putSetting)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports 503 until every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION",
			"details": "invalid id",
		})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
