package server

import (
	"context"

	userdomain "gtd-api/backend/internal/user/domain"
)

type userCtxKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *userdomain.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFrom returns the authenticated user set by the auth middleware, or
// (nil, false) when the request was not authenticated.
func UserFrom(ctx context.Context) (*userdomain.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(*userdomain.User)
	return u, ok && u != nil
}
