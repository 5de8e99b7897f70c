package favorite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/catalog"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ps, err := Products(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, catalog.OfferAll(ps, time.Now().UTC()), http.StatusOK)
	}
}

func HandleToggle(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in FavoriteNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		favored, err := Toggle(ctx, db, clm.UserID, in.ProductID, time.Now().UTC())
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, struct {
			ProductID  string `json:"productId"`
			IsFavorite bool   `json:"isFavorite"`
		}{in.ProductID, favored}, http.StatusOK)
	}
}

func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "productId")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		removed, err := Remove(ctx, db, clm.UserID, id)
		if err != nil {
			return err
		}
		if !removed {
			return weberr.NotFound(fmt.Errorf("product[%s] is not a favorite", id))
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
