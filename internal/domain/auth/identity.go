package auth

import (
	"context"
	"slices"

	"github.com/xenking/eshop/internal/domain/user"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   user.Role
}

// Authorize reports whether the identity holds one of the roles. An empty
// role list only requires an authenticated caller.
func Authorize(id Identity, roles ...user.Role) bool {
	if id.UserID == "" {
		return false
	}
	return len(roles) == 0 || slices.Contains(roles, id.Role)
}

// IsStaff reports whether the identity may act on other users' records.
func IsStaff(id Identity) bool {
	return id.Role == user.RoleAdmin || id.Role == user.RoleManager
}

type identityKey struct{}

// WithIdentity stores the identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
