package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/security"
)

// JWTValidator turns a bearer token into the caller's identity.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth rejects requests without a valid bearer token and stores the caller
// on the request context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			deny(c, apperror.NewUnauthorized("missing authorization header"))
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			deny(c, apperror.NewUnauthorized("invalid authorization header format"))
			return
		}

		user, err := validator.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			deny(c, apperror.NewUnauthorized("invalid token"))
			return
		}

		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
		c.Next()
	}
}

// RequirePermission admits callers holding permission. Admins always pass.
func RequirePermission(permission string) gin.HandlerFunc {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission admits callers holding at least one of permissions.
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return guard(func(s *security.AccessScope) *apperror.AppError {
		if slices.ContainsFunc(permissions, s.HasPermission) {
			return nil
		}
		if len(permissions) == 1 {
			return apperror.NewForbidden("insufficient permissions").
				WithDetail("required_permission", permissions[0])
		}
		return apperror.NewForbidden("insufficient permissions").
			WithDetail("required_permissions", permissions)
	})
}

// RequireRole admits callers holding at least one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return guard(func(s *security.AccessScope) *apperror.AppError {
		if s.IsAdmin || slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(s.Roles, r) }) {
			return nil
		}
		return apperror.NewForbidden("insufficient permissions").
			WithDetail("required_roles", roles)
	})
}

func guard(check func(*security.AccessScope) *apperror.AppError) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if appctx.GetUser(ctx) == nil {
			deny(c, apperror.NewUnauthorized("authentication required"))
			return
		}
		if err := check(security.GetScope(ctx)); err != nil {
			deny(c, err)
			return
		}
		c.Next()
	}
}

func deny(c *gin.Context, err *apperror.AppError) {
	_ = c.Error(err)
	c.Abort()
}
