package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/jmoiron/sqlx"
)

func HandleShowCurrent(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		u, err := Fetch(ctx, db, clm.UserID)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NotFound(fmt.Errorf("user[%s] not found", clm.UserID))
			}
			return err
		}

		return web.Respond(ctx, w, u, http.StatusOK)
	}
}
