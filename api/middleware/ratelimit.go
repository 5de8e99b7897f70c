package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/rate"
)

// RateLimit throttles per authenticated user, or per client address for
// anonymous requests.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			id := web.ClientIP(r)
			if clm, err := claims.Get(ctx); err == nil {
				id = clm.UserID
			}

			if !lim.Check(id) {
				return weberr.TooManyRequests(errors.New("too many requests"), weberr.WithField("client", id))
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
