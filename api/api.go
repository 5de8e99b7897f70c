package api

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/irsalhamdi/e-commerce-media/api/middleware"
	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/core/auth"
	"github.com/irsalhamdi/e-commerce-media/core/cart"
	"github.com/irsalhamdi/e-commerce-media/core/catalog"
	"github.com/irsalhamdi/e-commerce-media/core/checkout"
	"github.com/irsalhamdi/e-commerce-media/core/delivery"
	"github.com/irsalhamdi/e-commerce-media/core/favorite"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/irsalhamdi/e-commerce-media/core/upload"
	"github.com/irsalhamdi/e-commerce-media/core/user"
	"github.com/irsalhamdi/e-commerce-media/rate"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	CorsOrigin       string
	Log              logrus.FieldLogger
	DB               *sqlx.DB
	Session          *scs.SessionManager
	Checkout         *checkout.Orchestrator
	Delivery         *delivery.Engine
	Uploader         *upload.Uploader
	Objects          catalog.ObjectStore
	WebCfg           config.Web
	StripeCfg        config.Stripe
	Providers        map[string]auth.Provider
	LoginRedirectURL string
	DownloadLimiter  *rate.Limiter
	LoginLimiter     *rate.Limiter
	Metrics          prometheus.Gatherer
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, auth.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	if cfg.Metrics != nil {
		a.Router.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	authen := auth.Authenticate(cfg.Session)
	admin := auth.Admin(cfg.Session)

	var loginLimit, downloadLimit web.Middleware
	if cfg.LoginLimiter != nil {
		loginLimit = middleware.RateLimit(cfg.LoginLimiter)
	}
	if cfg.DownloadLimiter != nil {
		downloadLimit = middleware.RateLimit(cfg.DownloadLimiter)
	}

	a.Handle(http.MethodPost, "/auth/signup", auth.HandleSignup(cfg.DB, cfg.Session), loginLimit)
	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(cfg.DB, cfg.Session), loginLimit)
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))
	a.Handle(http.MethodGet, "/auth/oauth-login/{provider}", auth.HandleOauthLogin(cfg.Session, cfg.Providers))
	a.Handle(http.MethodGet, "/auth/oauth-callback/{provider}", auth.HandleOauthCallback(cfg.DB, cfg.Session, cfg.Providers, cfg.LoginRedirectURL))

	a.Handle(http.MethodGet, "/users/current", user.HandleShowCurrent(cfg.DB), authen)

	a.Handle(http.MethodGet, "/products", catalog.HandleList(cfg.DB, true))
	a.Handle(http.MethodGet, "/products/{slug}", catalog.HandleShow(cfg.DB))
	a.Handle(http.MethodGet, "/admin/products", catalog.HandleList(cfg.DB, false), admin)
	a.Handle(http.MethodPost, "/products", catalog.HandleCreate(cfg.DB), admin)
	a.Handle(http.MethodPut, "/products/{id}", catalog.HandleUpdate(cfg.DB), admin)
	a.Handle(http.MethodDelete, "/products/{id}", catalog.HandleDelete(cfg.DB, cfg.Objects, cfg.Log), admin)

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart", cart.HandleDelete(cfg.DB), authen)
	a.Handle(http.MethodGet, "/cart/count", cart.HandleCount(cfg.DB), authen)
	a.Handle(http.MethodPut, "/cart/items", cart.HandleCreateItem(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart/items/{id}", cart.HandleDeleteItem(cfg.DB), authen)

	a.Handle(http.MethodPost, "/checkout", checkout.HandleInitiate(cfg.Checkout), authen)
	a.Handle(http.MethodGet, "/checkout/verify", checkout.HandleVerifyRedirect(cfg.Checkout, cfg.WebCfg, cfg.Log), authen)
	a.Handle(http.MethodPost, "/checkout/verify", checkout.HandleVerify(cfg.Checkout), authen)
	if cfg.StripeCfg.WebhookSecret != "" {
		a.Handle(http.MethodPost, "/checkout/stripe/webhook", checkout.HandleStripeWebhook(cfg.Checkout, cfg.StripeCfg, cfg.Log))
	}

	a.Handle(http.MethodGet, "/library", delivery.HandleLibrary(cfg.DB, cfg.Delivery), authen)
	a.Handle(http.MethodGet, "/download/{purchaseId}", delivery.HandleDownload(cfg.Delivery), authen, downloadLimit)
	a.Handle(http.MethodGet, "/audio/stream/{purchaseId}", delivery.HandleStream(cfg.Delivery), authen)

	a.Handle(http.MethodGet, "/favorites", favorite.HandleList(cfg.DB), authen)
	a.Handle(http.MethodPost, "/favorites", favorite.HandleToggle(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/favorites/{productId}", favorite.HandleDelete(cfg.DB), authen)

	a.Handle(http.MethodPost, "/uploads/direct", upload.HandleDirect(cfg.Uploader), admin)
	a.Handle(http.MethodPost, "/uploads/chunk", upload.HandleChunk(cfg.Uploader), admin)

	a.Handle(http.MethodPost, "/api/admin/cleanup-purchases", purchase.HandleCleanup(cfg.DB, cfg.Log), admin)

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
