package auth

import (
	"context"

	"github.com/dukerupert/guilddash/internal/session"
)

type contextKey struct{}

func WithClaims(ctx context.Context, c *session.Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (*session.Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*session.Claims)
	return c, ok && c != nil
}

func UserID(ctx context.Context) string {
	c, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return c.UserID
}

// AccessToken returns the caller's Discord bearer token.
func AccessToken(ctx context.Context) string {
	c, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return c.AccessToken
}
