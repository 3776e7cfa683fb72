package domain

import "context"

type userKey struct{}

// WithUser stores the acting user in the context. Services read the identity
// from here instead of from any process-wide state.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext extracts the acting user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}
