package middleware

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// Recovery turns a handler panic into a 500 response. The panic value and
// stack go to the log only.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error(c.Request.Context(), "panic recovered",
			"panic", recovered,
			"route", c.FullPath(),
			"stack", string(debug.Stack()),
		)
		if c.Writer.Written() {
			c.Abort()
			return
		}
		respondError(c, apperror.NewInternal(fmt.Errorf("panic: %v", recovered)))
	})
}
