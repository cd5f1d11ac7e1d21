package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pwa-modeller/overlay/internal/metrics"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeNoModel         = "no_model"
	ErrCodeInternalError   = "internal_error"
	ErrCodeValidationError = "validation_error"
)

// respondError writes the service's standard JSON error shape and aborts the
// request. The request id (set by the request ID middleware) is echoed when
// present so errors can be correlated with logs.
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()

	resp := map[string]string{
		"code":    code,
		"message": message,
	}
	if rid, exists := c.Get("request_id"); exists {
		if s, ok := rid.(string); ok && s != "" {
			resp["request_id"] = s
		}
	}

	c.AbortWithStatusJSON(status, resp)
}
