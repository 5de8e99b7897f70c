package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/e-commerce-media/api"
	"github.com/irsalhamdi/e-commerce-media/api/background"
	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/core/auth"
	"github.com/irsalhamdi/e-commerce-media/core/checkout"
	"github.com/irsalhamdi/e-commerce-media/core/delivery"
	"github.com/irsalhamdi/e-commerce-media/core/receipt"
	"github.com/irsalhamdi/e-commerce-media/core/upload"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/irsalhamdi/e-commerce-media/email"
	"github.com/irsalhamdi/e-commerce-media/payment"
	gwpaypal "github.com/irsalhamdi/e-commerce-media/payment/paypal"
	"github.com/irsalhamdi/e-commerce-media/payment/paystack"
	gwstripe "github.com/irsalhamdi/e-commerce-media/payment/stripe"
	"github.com/irsalhamdi/e-commerce-media/rate"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/joho/godotenv"
	"github.com/plutov/paypal/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	const prefix = "KLARIFY"
	var cfg config.Config
	if _, err := conf.Parse(prefix, &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate the database: %w", err)
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Auth.SessionLifetime

	var (
		sessions    upload.SessionStore
		memSessions *upload.MemoryStore
	)
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}

		sessionManager.Store = goredisstore.New(rdb)
		sessions = upload.NewRedisStore(rdb, cfg.Upload.SessionTTL)
	} else {
		logger.Warn("no redis configured: sessions are kept in memory")
		memSessions = upload.NewMemoryStore(cfg.Upload.SessionTTL, cfg.Upload.SweepInterval)
		defer memSessions.Stop()
		sessions = memSessions
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs, err := storage.NewPrometheusObserver("object_store", reg)
	if err != nil {
		return err
	}

	objects, err := storage.New(cfg.Storage, obs, logger)
	if err != nil {
		return fmt.Errorf("failed to build the object store client: %w", err)
	}

	gateway, err := makeGateway(cfg)
	if err != nil {
		return err
	}
	logger.Infof("payments through %s", gateway.Name())

	policy, err := delivery.ParsePolicy(cfg.Delivery)
	if err != nil {
		return fmt.Errorf("parsing delivery policy: %w", err)
	}

	metrics, err := delivery.NewMetrics(reg)
	if err != nil {
		return err
	}

	engine := delivery.New(delivery.Config{
		Purchases: delivery.SQLPurchases{DB: db},
		Store:     objects,
		Policy:    policy,
		URLTTL:    cfg.Delivery.URLTTL,
		Metrics:   metrics,
		Log:       logger,
	})

	bg := background.New(logger)

	var notifier checkout.Notifier
	if cfg.Email.Host != "" {
		notifier = receipt.Notifier{
			Directory: receipt.SQLDirectory{DB: db},
			Sender:    email.New(cfg.Email),
			Runner:    bg,
			Log:       logger,
		}
	}

	orch := checkout.New(checkout.Config{
		Store:       checkout.SQLStore{DB: db},
		Gateway:     gateway,
		Currency:    cfg.Payment.Currency,
		CallbackURL: cfg.Payment.CallbackURL,
		Notifier:    notifier,
		Log:         logger,
	})

	uploader := upload.New(upload.Config{
		Products: upload.SQLProducts{DB: db},
		Store:    objects,
		Sessions: sessions,
		Log:      logger,
	})
	if memSessions != nil {
		memSessions.OnExpire(uploader.Expired)
	}

	every := rate.Every(cfg.RateLimit.Interval)
	downloadLimiter := rate.NewLimiter(cfg.RateLimit.Burst, cfg.RateLimit.Expiry, every)
	defer downloadLimiter.Stop()
	loginLimiter := rate.NewLimiter(cfg.RateLimit.Burst, cfg.RateLimit.Expiry, every)
	defer loginLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Oauth.DiscoveryTimeout)
	defer cancel()
	google := cfg.Oauth.Google
	oauthProvs, err := auth.MakeProviders(ctx, []auth.ProviderConfig{
		{Name: "google", Client: google.Client, Secret: google.Secret, URL: google.URL, RedirectURL: google.RedirectURL},
	})
	if err != nil {
		return fmt.Errorf("failed to discover oauth providers: %w", err)
	}

	mux := api.APIMux(api.APIConfig{
		CorsOrigin:       cfg.Cors.Origin,
		Log:              logger,
		DB:               db,
		Session:          sessionManager,
		Checkout:         orch,
		Delivery:         engine,
		Uploader:         uploader,
		Objects:          objects,
		WebCfg:           cfg.Web,
		StripeCfg:        cfg.Stripe,
		Providers:        oauthProvs,
		LoginRedirectURL: cfg.Oauth.LoginRedirectURL,
		DownloadLimiter:  downloadLimiter,
		LoginLimiter:     loginLimiter,
		Metrics:          reg,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}

func makeGateway(cfg config.Config) (payment.Gateway, error) {
	switch cfg.Payment.Provider {
	case "paystack":
		if cfg.Paystack.SecretKey == "" {
			return nil, errors.New("paystack selected without a secret key")
		}
		return paystack.New(cfg.Paystack, &http.Client{Timeout: 15 * time.Second}), nil

	case "stripe":
		strp := &stripecl.API{}
		strp.Init(cfg.Stripe.APISecret, nil)
		return gwstripe.New(strp, cfg.Stripe), nil

	case "paypal":
		pp, err := paypal.NewClient(cfg.Paypal.ClientID, cfg.Paypal.Secret, cfg.Paypal.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to build the paypal client: %w", err)
		}
		if _, err = pp.GetAccessToken(context.TODO()); err != nil {
			return nil, fmt.Errorf("failed to get the first paypal access token: %w", err)
		}
		return gwpaypal.New(pp, cfg.Paypal), nil
	}

	return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
}
