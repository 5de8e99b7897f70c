package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
)

func HandleDownload(e *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "purchaseId")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		ua := r.UserAgent()
		if ua == "" {
			ua = "unknown"
		}

		d, err := e.IssueLinks(ctx, id, clm.UserID, Client{IP: web.ClientIP(r), UserAgent: ua})
		if err != nil {
			return deliveryError(err, fmt.Sprintf("issuing links for purchase[%s]", id))
		}

		return web.Respond(ctx, w, d, http.StatusOK)
	}
}

// HandleStream returns the audio of a purchase for the in-app player.
// Streaming does not count against the download limit.
func HandleStream(e *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "purchaseId")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		s, err := e.Stream(ctx, id, clm.UserID)
		if err != nil {
			return deliveryError(err, fmt.Sprintf("streaming purchase[%s]", id))
		}

		return web.Respond(ctx, w, s, http.StatusOK)
	}
}

func deliveryError(err error, op string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return weberr.NewError(err, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		return weberr.NewError(err, ErrForbidden.Error(), http.StatusForbidden)
	case errors.Is(err, ErrPaymentIncomplete),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrLimitReached),
		errors.Is(err, ErrNoAudio):
		return weberr.Reason(err, http.StatusBadRequest)
	case errors.Is(err, ErrContentUnavailable):
		return weberr.NewError(err, ErrContentUnavailable.Error(), http.StatusNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type LibraryEntry struct {
	Purchase         purchase.Purchase `json:"purchase"`
	Product          product.Product   `json:"product"`
	Status           Status            `json:"status"`
	LastDownloadedAt *time.Time        `json:"lastDownloadedAt"`
}

// HandleLibrary lists the user's completed purchases with their download
// status.
func HandleLibrary(db *sqlx.DB, e *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ps, err := purchase.FetchCompleted(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		last, err := purchase.LastDownloads(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		products := make(map[string]product.Product)
		entries := make([]LibraryEntry, 0, len(ps))
		for _, pu := range ps {
			prod, ok := products[pu.ProductID]
			if !ok {
				prod, err = product.Fetch(ctx, db, pu.ProductID)
				if err != nil {
					if errors.Is(err, database.ErrDBNotFound) {
						continue
					}
					return err
				}
				products[pu.ProductID] = prod
			}

			entry := LibraryEntry{
				Purchase: pu,
				Product:  prod,
				Status:   e.Status(pu),
			}
			if at, ok := last[pu.ID]; ok {
				entry.LastDownloadedAt = &at
			}
			entries = append(entries, entry)
		}

		return web.Respond(ctx, w, entries, http.StatusOK)
	}
}
