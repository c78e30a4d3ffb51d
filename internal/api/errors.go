package api

import (
	"context"
	"errors"
	"net/http"

	"pos-service/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	models.ErrNotFound.Code:            http.StatusNotFound,
	models.ErrBusy.Code:                http.StatusServiceUnavailable,
	models.ErrConflict.Code:            http.StatusConflict,
	models.ErrOverpayment.Code:         http.StatusConflict,
	models.ErrInvalidTransition.Code:   http.StatusConflict,
	models.ErrOrderNotEditable.Code:    http.StatusConflict,
	models.ErrReferentialConflict.Code: http.StatusConflict,
	models.ErrProtectedResource.Code:   http.StatusConflict,
	models.ErrInsufficientStock.Code:   http.StatusConflict,
	models.ErrInvalidState.Code:        http.StatusConflict,
	models.ErrInactiveUser.Code:        http.StatusForbidden,
	models.ErrInvalidCredentials.Code:  http.StatusUnauthorized,
}

// statusFor maps a domain error to its HTTP status. Remaining domain codes are
// input problems.
func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusBadRequest
}

// writeError renders err as {"error": CODE, "details": message}
func (h *Handler) writeError(c *gin.Context, err error) {
	code := models.ErrorCode(err)
	if code == "" {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "CANCELLED",
				"details": err.Error(),
			})
			return
		}

		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL",
			"details": "internal error",
		})
		return
	}

	status := statusFor(code)
	if models.IsRetryable(err) {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, gin.H{
		"error":   code,
		"details": err.Error(),
	})
}
