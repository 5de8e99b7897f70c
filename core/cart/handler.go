package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
)

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		c, err := Get(ctx, db, clm.UserID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("fetching cart: %w", err)
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleCount(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		n, err := Count(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, struct {
			Count int `json:"count"`
		}{n}, http.StatusOK)
	}
}

func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if err := Clear(ctx, db, clm.UserID); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleCreateItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		it, err := Add(ctx, db, clm.UserID, in, time.Now().UTC())
		switch {
		case errors.Is(err, ErrDuplicateItem):
			return weberr.Conflict(err)
		case errors.Is(err, ErrProductUnavailable):
			return weberr.Reason(err, http.StatusNotFound)
		case errors.Is(err, ErrFormatUnavailable):
			return weberr.Reason(err, http.StatusBadRequest)
		case err != nil:
			return fmt.Errorf("adding product[%s] to cart: %w", in.ProductID, err)
		}

		return web.Respond(ctx, w, it, http.StatusCreated)
	}
}

func HandleDeleteItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		if err := Remove(ctx, db, clm.UserID, id); err != nil {
			if errors.Is(err, ErrItemNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
