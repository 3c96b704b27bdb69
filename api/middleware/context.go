package middleware

import (
	"context"

	"github.com/google/uuid"
)

type callerKey struct{}

// caller is what Auth learned about the request's principal. Both fields are
// copied from verified token claims.
type caller struct {
	userID string
	role   string
}

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func withCaller(ctx context.Context, edit func(*caller)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := callerFrom(ctx)
	edit(&c)
	return context.WithValue(ctx, callerKey{}, c)
}

func UserIDFromContext(ctx context.Context) string { return callerFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return callerFrom(ctx).role }

// UserUUIDFromContext is false when no user is set or the id is not a UUID.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return withCaller(ctx, func(c *caller) { c.userID = userID })
}

// WithRole lets handler tests act as a role without minting a token.
func WithRole(ctx context.Context, role string) context.Context {
	return withCaller(ctx, func(c *caller) { c.role = role })
}
