// Package security provides authorization decisions for ledger operations.
package security

import (
	"context"
	"fmt"
	"slices"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
)

// Permission names carried in token claims.
const (
	PermissionLedgerRead    = "ledger:read"
	PermissionLedgerWrite   = "ledger:write"
	PermissionLocationWrite = "location:write"
	PermissionSnapshotSync  = "snapshot:sync"
	PermissionCountRead     = "count:read"
	PermissionCountEnter    = "count:enter"
	PermissionCountManage   = "count:manage"
	PermissionCountReview   = "count:review"
	PermissionCountApprove  = "count:approve"
)

// Roles that see expected quantities during a count.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleManager    = "manager"
	RoleCounter    = "counter"
)

var privilegedRoles = []string{RoleAdmin, RoleSupervisor, RoleManager}

var rolePermissions = map[string][]string{
	RoleSupervisor: {
		PermissionLedgerRead, PermissionLedgerWrite, PermissionLocationWrite,
		PermissionSnapshotSync, PermissionCountRead, PermissionCountEnter,
		PermissionCountManage, PermissionCountReview, PermissionCountApprove,
	},
	RoleManager: {
		PermissionLedgerRead, PermissionCountRead, PermissionCountManage,
		PermissionCountReview,
	},
	RoleCounter: {PermissionCountRead, PermissionCountEnter},
}

// DefaultPermissions returns the union of permissions granted to roles when
// tokens are minted without an explicit permission list. Admin is handled by
// the IsAdmin flag and grants nothing here.
func DefaultPermissions(roles ...string) []string {
	var out []string
	for _, r := range roles {
		for _, p := range rolePermissions[r] {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// AccessScope is the caller's identity reduced to what authorization needs.
type AccessScope struct {
	UserID      string
	IsAdmin     bool
	Roles       []string
	Permissions []string
}

// NewAccessScope creates AccessScope from context.
func NewAccessScope(ctx context.Context) *AccessScope {
	user := appctx.GetUser(ctx)
	if user == nil {
		return &AccessScope{UserID: GetUserID(ctx)}
	}
	return &AccessScope{
		UserID:      user.UserID,
		IsAdmin:     user.IsAdmin,
		Roles:       user.Roles,
		Permissions: user.Permissions,
	}
}

// HasPermission checks a single permission.
func (s *AccessScope) HasPermission(perm string) bool {
	return s.IsAdmin || slices.Contains(s.Permissions, perm)
}

// IsPrivileged reports whether the caller may see system quantities and
// discrepancies of a count session.
func (s *AccessScope) IsPrivileged() bool {
	if s.IsAdmin || s.HasPermission(PermissionCountReview) {
		return true
	}
	for _, r := range s.Roles {
		if slices.Contains(privilegedRoles, r) {
			return true
		}
	}
	return false
}

// RequirePermission returns error if permission is missing.
func (s *AccessScope) RequirePermission(perm string) error {
	if !s.HasPermission(perm) {
		return apperror.NewForbidden(fmt.Sprintf("permission %s required", perm)).
			WithDetail("permission", perm)
	}
	return nil
}

// RequirePrivileged returns Forbidden unless the caller is privileged.
func (s *AccessScope) RequirePrivileged(action string) error {
	if !s.IsPrivileged() {
		return apperror.NewForbidden(fmt.Sprintf("%s requires a supervising role", action)).
			WithDetail("action", action)
	}
	return nil
}

// IsPrivileged is a shortcut for NewAccessScope(ctx).IsPrivileged().
func IsPrivileged(ctx context.Context) bool {
	return GetScope(ctx).IsPrivileged()
}

type scopeKey struct{}

// WithScope adds AccessScope to context.
func WithScope(ctx context.Context, scope *AccessScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// GetScope returns AccessScope from context, deriving it from the user when absent.
func GetScope(ctx context.Context) *AccessScope {
	if v, ok := ctx.Value(scopeKey{}).(*AccessScope); ok {
		return v
	}
	return NewAccessScope(ctx)
}
