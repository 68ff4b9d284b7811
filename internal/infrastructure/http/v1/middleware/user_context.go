// Package middleware provides HTTP middleware for the stock ledger API.
package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/security"
)

// UserContext derives the caller's access scope once per request so domain
// services can decide on blind views and privileged actions. Runs after Auth.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if uid := appctx.GetUserID(ctx); uid != "" {
			ctx = security.WithUserID(ctx, uid)
		}
		c.Request = c.Request.WithContext(security.WithScope(ctx, security.NewAccessScope(ctx)))
		c.Next()
	}
}
