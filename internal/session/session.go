package session

import (
	"context"
	"strings"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider resolves the authenticated caller for a request context.
type Provider interface {
	CurrentUser(ctx context.Context) (User, bool)
}

type contextKey struct{}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func FromContext(ctx context.Context) (User, bool) {
	value := ctx.Value(contextKey{})
	if value == nil {
		return User{}, false
	}
	user, ok := value.(User)
	if !ok || user.ID == "" {
		return User{}, false
	}
	return user, true
}

// ContextProvider reads the user placed on the context by the auth
// middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (User, bool) {
	return FromContext(ctx)
}

// Static always returns the same user. Used by tools and tests.
type Static struct {
	User User
}

func (s Static) CurrentUser(ctx context.Context) (User, bool) {
	if s.User.ID == "" {
		return User{}, false
	}
	return s.User, true
}

func SameEmail(a, b string) bool {
	a = strings.TrimSpace(a)
	return a != "" && strings.EqualFold(a, strings.TrimSpace(b))
}
