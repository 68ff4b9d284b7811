package security

import (
	"context"

	appctx "stockledger/internal/core/context"
)

type userIDKey struct{}

// WithUserID adds user ID to context.
// Used by middleware and background jobs to attribute ledger changes.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves user ID from context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey{}).(string); ok {
		return uid
	}
	return ""
}

// ActorOrSystem returns the acting user id, or "system" for unattended jobs.
func ActorOrSystem(ctx context.Context) string {
	if uid := GetUserID(ctx); uid != "" {
		return uid
	}
	if uid := appctx.GetUserID(ctx); uid != "" {
		return uid
	}
	return "system"
}
