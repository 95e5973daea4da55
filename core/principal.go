package core

import (
	"context"
	"errors"
)

type principalKey struct{}

var ErrNoPrincipal = errors.New("no authenticated user in context")

// Principal is the authenticated staff member acting within a request.
type Principal struct {
	UserID   int
	Username string
	Email    string
	Roles    []string
}

func (p Principal) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// MustPrincipal returns a ValidationError when the context carries no principal.
func MustPrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == 0 {
		return Principal{}, NewValidationError(ErrNoPrincipal)
	}
	return p, nil
}
