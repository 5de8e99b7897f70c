package purchase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// HandleCleanup force-completes PENDING purchases whose payment was
// confirmed out of band but never verified here.
func HandleCleanup(db *sqlx.DB, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in CleanupRequest
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		n, err := CompleteReferences(ctx, db, in.References, time.Now().UTC())
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"references": len(in.References),
			"updated":    n,
		}).Info("pending purchases force-completed")

		return web.Respond(ctx, w, struct {
			Success bool  `json:"success"`
			Updated int64 `json:"updated"`
		}{true, n}, http.StatusOK)
	}
}
