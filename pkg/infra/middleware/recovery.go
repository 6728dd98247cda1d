// Package middleware provides the gin middleware chain of the HTTP server.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/pkg/utils/errors"
	"github.com/kart-io/handbook-rag/pkg/utils/response"
)

// RecoveryConfig defines the config for Recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace logs the stack trace of a recovered panic.
	EnableStackTrace bool

	// OnPanic is called when a panic occurs.
	OnPanic func(c *gin.Context, err interface{}, stack []byte)
}

// DefaultRecoveryConfig is the default Recovery middleware config.
var DefaultRecoveryConfig = RecoveryConfig{
	EnableStackTrace: true,
}

// Recovery returns a middleware that recovers from panics.
// It converts panics to JSON error responses using the error code system.
func Recovery() gin.HandlerFunc {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// RecoveryWithConfig returns a Recovery middleware with custom config.
func RecoveryWithConfig(config RecoveryConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()

				if config.OnPanic != nil {
					config.OnPanic(c, r, stack)
				}

				fields := []interface{}{
					"panic", fmt.Sprint(r),
					"path", c.Request.URL.Path,
					"request_id", c.GetString(response.RequestIDKey),
				}
				if config.EnableStackTrace {
					fields = append(fields, "stack", string(stack))
				}
				logger.Errorw("Panic recovered", fields...)

				response.Fail(c, errors.ErrPanic.WithCause(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
