package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var ErrProductInUse = errors.New("product has purchases and cannot be deleted")

// HandleList lists the catalog. Public listings hide inactive products.
func HandleList(db *sqlx.DB, activeOnly bool) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		q := r.URL.Query()

		f := product.Filter{
			Query:      strings.TrimSpace(q.Get("q")),
			ActiveOnly: activeOnly,
		}
		if t := q.Get("type"); t != "" {
			ct, err := product.ParseContentType(strings.ToUpper(t))
			if err != nil {
				return weberr.BadRequest(err)
			}
			f.Type = ct
		}

		ps, err := product.List(ctx, db, f)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, OfferAll(ps, time.Now().UTC()), http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		slug := web.Param(r, "slug")
		if !validate.IsSlug(slug) {
			return weberr.NotFound(fmt.Errorf("product %q not found", slug))
		}

		p, err := product.FetchBySlug(ctx, db, slug)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}
		if !p.Active {
			return weberr.NotFound(fmt.Errorf("product %q is not active", slug))
		}

		return web.Respond(ctx, w, Offer(p, time.Now().UTC()), http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in product.ProductNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		p, err := NewProduct(in, time.Now().UTC())
		if err != nil {
			return weberr.BadRequest(err)
		}

		if err := product.Create(ctx, db, p); err != nil {
			if errors.Is(err, database.ErrDBDuplicatedEntry) {
				return weberr.Conflict(fmt.Errorf("slug %q already taken: %w", p.Slug, err))
			}
			return err
		}

		return web.Respond(ctx, w, p, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		var in product.ProductUp
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		p, err := product.Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if err := in.Apply(&p); err != nil {
			return weberr.BadRequest(err)
		}
		p.UpdatedAt = time.Now().UTC()

		if err := product.Update(ctx, db, p); err != nil {
			return err
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

// HandleDelete removes a product and every object under its storage path.
// Products that were ever purchased stay.
func HandleDelete(db *sqlx.DB, store ObjectStore, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(fmt.Errorf("passed id is not valid: %w", err))
		}

		p, err := product.Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if err := product.Delete(ctx, db, id); err != nil {
			if errors.Is(err, database.ErrDBReferenced) {
				return weberr.Conflict(fmt.Errorf("%w: %v", ErrProductInUse, err))
			}
			return err
		}

		prefix := storage.For(p.StoragePath, p.Slug).Prefix()
		n, err := store.DeleteAll(ctx, prefix)
		fields := logrus.Fields{"product_id": id, "prefix": prefix, "deleted": n}
		if err != nil {
			log.WithFields(fields).WithError(err).Error("product files left behind")
		} else {
			log.WithFields(fields).Info("product deleted")
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
