// Package auth keeps users logged in through server side sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/core/user"
)

const (
	userIDKey = "userID"
	emailKey  = "email"
	nameKey   = "name"
	roleKey   = "role"
	stateKey  = "oauthState"
)

// Login binds the user to a fresh session token.
func Login(ctx context.Context, session *scs.SessionManager, u user.User) error {
	if err := session.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}

	session.Put(ctx, userIDKey, u.ID)
	session.Put(ctx, emailKey, u.Email)
	session.Put(ctx, nameKey, u.Name)
	session.Put(ctx, roleKey, u.Role)
	return nil
}

func Logout(ctx context.Context, session *scs.SessionManager) error {
	if err := session.Destroy(ctx); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	return nil
}

func sessionClaims(ctx context.Context, session *scs.SessionManager) (claims.Claims, bool) {
	id := session.GetString(ctx, userIDKey)
	if id == "" {
		return claims.Claims{}, false
	}
	return claims.Claims{
		UserID: id,
		Email:  session.GetString(ctx, emailKey),
		Name:   session.GetString(ctx, nameKey),
		Role:   session.GetString(ctx, roleKey),
	}, true
}

// LoadAndSave loads the session of the request and commits it once the
// handler is done.
func LoadAndSave(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var err error
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				err = handler(r.Context(), w, r)
			})

			session.LoadAndSave(next).ServeHTTP(w, r.WithContext(ctx))
			return err
		}
		return h
	}
	return m
}

// Authenticate puts the claims of the logged in user in the context.
// Requests made without a session are rejected.
func Authenticate(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			clm, ok := sessionClaims(ctx, session)
			if !ok {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}
			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

// Admin is Authenticate restricted to administrators.
func Admin(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			clm, ok := sessionClaims(ctx, session)
			if !ok {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}
			if clm.Role != claims.RoleAdmin {
				return weberr.Forbidden(fmt.Errorf("user[%s] is not an admin", clm.UserID))
			}
			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}
