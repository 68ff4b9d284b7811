package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// ErrorHandler renders the last error registered by a handler. Application
// errors keep their code and details; anything else becomes an opaque 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		respondError(c, c.Errors.Last().Err)
	}
}

// respondError writes the JSON error envelope and records it against the
// request's idempotency key.
func respondError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	failIdempotency(c, status, body)
	c.AbortWithStatusJSON(status, body)
}

func errorBody(c *gin.Context, err error) (int, gin.H) {
	ctx := c.Request.Context()

	appErr, ok := apperror.AsAppError(err)
	if !ok {
		logger.Error(ctx, "unhandled error", "error", err)
		appErr = apperror.NewInternal(err)
	}
	if appErr.Err != nil {
		logger.Error(ctx, "request error", "code", appErr.Code, "cause", appErr.Err)
	}

	if appErr.HTTPStatus >= http.StatusInternalServerError {
		// Internal causes never reach the client.
		return appErr.HTTPStatus, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": gin.H{"request_id": c.GetString(ginRequestID)},
		}
	}
	return appErr.HTTPStatus, gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
	}
}
