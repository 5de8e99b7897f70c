package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/sirupsen/logrus"
	"github.com/zenazn/goji/web/mutil"
)

func Logger(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			log := log.WithFields(logrus.Fields{
				"req_id":     ContextRequestID(ctx),
				"method":     r.Method,
				"path":       r.URL.Path,
				"remoteaddr": web.ClientIP(r),
			})

			log.Debug("started")
			start := time.Now().UTC()

			lw := mutil.WrapWriter(w)
			err := handler(ctx, lw, r)

			fields := logrus.Fields{
				"statuscode": lw.Status(),
				"bytes":      lw.BytesWritten(),
				"since":      time.Since(start).Milliseconds(),
			}
			if clm, cerr := claims.Get(ctx); cerr == nil {
				fields["user_id"] = clm.UserID
			}
			log.WithFields(fields).Info("completed")

			return err
		}
		return h
	}
	return m
}
