package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/core/user"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
)

func HandleSignup(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in user.UserSignup
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		hash, err := user.HashPassword(in.Password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		now := time.Now().UTC()
		u := user.User{
			ID:           validate.GenerateID(),
			Name:         in.Name,
			Email:        strings.ToLower(in.Email),
			Role:         claims.RoleUser,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := user.Create(ctx, db, u); err != nil {
			if errors.Is(err, user.ErrUniqueEmail) {
				return weberr.Reason(err, http.StatusConflict)
			}
			return err
		}

		if err := Login(ctx, session, u); err != nil {
			return err
		}

		return web.Respond(ctx, w, u, http.StatusCreated)
	}
}

func HandleLogin(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in user.UserLogin
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		u, err := user.FetchByEmail(ctx, db, strings.ToLower(in.Email))
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NewError(err, user.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
			}
			return err
		}

		if err := u.CheckPassword(in.Password); err != nil {
			return weberr.NewError(err, user.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		}

		if err := Login(ctx, session, u); err != nil {
			return err
		}

		return web.Respond(ctx, w, u, http.StatusOK)
	}
}

func HandleLogout(session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := Logout(ctx, session); err != nil {
			return err
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
