package config

import "time"

type Config struct {
	Web       Web
	DB        DB
	Redis     Redis
	Storage   Storage
	Payment   Payment
	Paystack  Paystack
	Stripe    Stripe
	Paypal    Paypal
	Delivery  Delivery
	Upload    Upload
	Email     Email
	Auth      Auth
	Oauth     Oauth
	Cors      Cors
	RateLimit RateLimit
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:30s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
	LibraryURL      string        `conf:"default:/my-library"`
	CartURL         string        `conf:"default:/cart"`
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:postgres"`
	MaxIdleConns int    `conf:"default:0"`
	MaxOpenConns int    `conf:"default:0"`
	DisableTLS   bool   `conf:"default:true"`
}

type Redis struct {
	// Empty keeps upload sessions in process memory.
	URL string
}

type Storage struct {
	Endpoint        string
	Region          string        `conf:"default:auto"`
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string        `conf:"mask"`
	ListCacheSize   int           `conf:"default:256"`
	ListCacheTTL    time.Duration `conf:"default:5m"`
}

type Payment struct {
	Provider    string `conf:"default:paystack"`
	Currency    string `conf:"default:KES"`
	CallbackURL string `conf:"default:http://localhost:8000/checkout/verify"`
}

type Paystack struct {
	URL       string `conf:"default:https://api.paystack.co"`
	SecretKey string `conf:"mask"`
}

type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	SuccessURL    string
	CancelURL     string
}

type Paypal struct {
	ClientID  string
	Secret    string `conf:"mask"`
	URL       string `conf:"default:https://api-m.sandbox.paypal.com"`
	ReturnURL string
	CancelURL string
}

type Delivery struct {
	// Policy is either "audited" (no expiry, high ceiling) or "windowed".
	Policy       string        `conf:"default:audited"`
	MaxDownloads int           `conf:"default:100"`
	URLTTL       time.Duration `conf:"default:1h"`
}

type Upload struct {
	SessionTTL    time.Duration `conf:"default:1h"`
	SweepInterval time.Duration `conf:"default:5m"`
}

type Email struct {
	Address  string
	Password string `conf:"mask"`
	Host     string
	Port     int `conf:"default:587"`
	From     string
}

type Auth struct {
	SessionLifetime time.Duration `conf:"default:24h"`
}

type Oauth struct {
	DiscoveryTimeout time.Duration `conf:"default:10s"`
	LoginRedirectURL string        `conf:"default:/"`
	Google           OauthProvider
}

type OauthProvider struct {
	Client      string
	Secret      string `conf:"mask"`
	URL         string `conf:"default:https://accounts.google.com"`
	RedirectURL string
}

type Cors struct {
	Origin string
}

type RateLimit struct {
	Burst    int           `conf:"default:10"`
	Interval time.Duration `conf:"default:6s"`
	Expiry   time.Duration `conf:"default:10m"`
}
