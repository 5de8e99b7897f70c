package claims

import (
	"context"
	"errors"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

var ErrMissing = errors.New("claim value missing from context")

type Claims struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

type ctxKey int

const claimsKey ctxKey = 1

func Set(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func Get(ctx context.Context) (Claims, error) {
	v, ok := ctx.Value(claimsKey).(Claims)
	if !ok {
		return Claims{}, ErrMissing
	}
	return v, nil
}

func IsAdmin(ctx context.Context) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.Role == RoleAdmin
}
