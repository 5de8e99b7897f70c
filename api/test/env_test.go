package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/e-commerce-media/api"
	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/core/checkout"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/core/delivery"
	"github.com/irsalhamdi/e-commerce-media/core/upload"
	"github.com/irsalhamdi/e-commerce-media/core/user"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/irsalhamdi/e-commerce-media/payment"
	"github.com/irsalhamdi/e-commerce-media/payment/paystack"
	gwstripe "github.com/irsalhamdi/e-commerce-media/payment/stripe"
	"github.com/irsalhamdi/e-commerce-media/storage"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

const webhookSecret = "whsec_test_secret"

// TestEnv is a running storefront backed by a throwaway postgres container
// and mock payment gateways.
type TestEnv struct {
	*httptest.Server
	DB            *sqlx.DB
	Objects       *memObjects
	Paystack      *mockPaystack
	Stripe        *mockStripe
	WebhookSecret string

	AdminEmail string
	AdminPass  string
	UserEmail  string
	UserPass   string
	UserID     string
}

func startPostgres(t *testing.T, name string) *sqlx.DB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Name:       fmt.Sprintf("%s_%d", name, time.Now().UnixNano()),
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=postgres",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("starting postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres container: %v", err)
		}
	})
	_ = res.Expire(300)

	var db *sqlx.DB
	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		var err error
		db, err = database.Open(config.DB{
			User:       "postgres",
			Password:   "postgres",
			Host:       res.GetHostPort("5432/tcp"),
			Name:       "postgres",
			DisableTLS: true,
		})
		if err != nil {
			return err
		}
		return database.StatusCheck(context.Background(), db)
	})
	if err != nil {
		t.Fatalf("waiting for postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *sqlx.DB, name, email, pass, role string) user.User {
	t.Helper()

	hash, err := user.HashPassword(pass)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	u := user.User{
		ID:           validate.GenerateID(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Create(context.Background(), db, u); err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return u
}

// NewTestEnv starts a storefront whose checkout goes through provider,
// either "paystack" or "stripe".
func NewTestEnv(t *testing.T, name, provider string) *TestEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db := startPostgres(t, name)

	env := &TestEnv{
		DB:            db,
		Objects:       newMemObjects(),
		Paystack:      newMockPaystack(),
		Stripe:        &mockStripe{},
		WebhookSecret: webhookSecret,
		AdminEmail:    "admin@example.com",
		AdminPass:     "admin-secret",
		UserEmail:     "reader@example.com",
		UserPass:      "reader-secret",
	}

	seedUser(t, db, "Admin", env.AdminEmail, env.AdminPass, claims.RoleAdmin)
	env.UserID = seedUser(t, db, "Reader", env.UserEmail, env.UserPass, claims.RoleUser).ID

	var gateway payment.Gateway
	switch provider {
	case "stripe":
		srv := httptest.NewServer(env.Stripe.handle())
		t.Cleanup(srv.Close)

		backends := &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL: stripe.String(srv.URL),
			}),
		}
		strp := &stripecl.API{}
		strp.Init("sk_test_key", backends)
		gateway = gwstripe.New(strp, config.Stripe{WebhookSecret: webhookSecret})

	default:
		srv := httptest.NewServer(env.Paystack.handle())
		t.Cleanup(srv.Close)
		gateway = paystack.New(config.Paystack{URL: srv.URL, SecretKey: "sk_test"}, srv.Client())
	}

	reg := prometheus.NewRegistry()
	metrics, err := delivery.NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	sessions := upload.NewMemoryStore(time.Hour, time.Hour)
	t.Cleanup(sessions.Stop)

	mux := api.APIMux(api.APIConfig{
		Log:     log,
		DB:      db,
		Session: scs.New(),
		Checkout: checkout.New(checkout.Config{
			Store:       checkout.SQLStore{DB: db},
			Gateway:     gateway,
			Currency:    "KES",
			CallbackURL: "http://localhost/checkout/verify",
			Log:         log,
		}),
		Delivery: delivery.New(delivery.Config{
			Purchases: delivery.SQLPurchases{DB: db},
			Store:     env.Objects,
			Policy:    delivery.Audited(3),
			URLTTL:    time.Hour,
			Metrics:   metrics,
			Log:       log,
		}),
		Uploader: upload.New(upload.Config{
			Products: upload.SQLProducts{DB: db},
			Store:    env.Objects,
			Sessions: sessions,
			Log:      log,
		}),
		Objects:   env.Objects,
		WebCfg:    config.Web{LibraryURL: "/my-library", CartURL: "/cart"},
		StripeCfg: config.Stripe{WebhookSecret: webhookSecret},
		Metrics:   reg,
	})

	env.Server = httptest.NewServer(mux)
	t.Cleanup(env.Server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	env.Server.Client().Jar = jar
	env.Server.Client().CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return env
}

func Login(s *httptest.Server, email, pass string) error {
	b, err := json.Marshal(user.UserLogin{Email: email, Password: pass})
	if err != nil {
		return err
	}

	w, err := s.Client().Post(s.URL+"/auth/login", "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		return fmt.Errorf("login as %s: status code %s", email, w.Status)
	}
	return nil
}

func Logout(s *httptest.Server) error {
	w, err := s.Client().Post(s.URL+"/auth/logout", "application/json", nil)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		return fmt.Errorf("logout: status code %s", w.Status)
	}
	return nil
}

// call sends body as json and decodes the answer into out when the status
// matches.
func (env *TestEnv) call(t *testing.T, method, path string, body any, want int, out any) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}

	r, err := http.NewRequest(method, env.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != want {
		msg, _ := io.ReadAll(w.Body)
		t.Fatalf("%s %s: status code %s, want %d: %s", method, path, w.Status, want, msg)
	}

	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]map[int32][]byte
	next    int
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, uploads: map[string]map[int32][]byte{}}
}

func (m *memObjects) List(_ context.Context, prefix string) ([]storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []storage.Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.Object{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memObjects) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memObjects) SignedGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (m *memObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) DeleteAll(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
			n++
		}
	}
	return n, nil
}

func (m *memObjects) CreateMultipart(_ context.Context, key, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("%s#%d", key, m.next)
	m.uploads[id] = map[int32][]byte{}
	return id, nil
}

func (m *memObjects) UploadPart(_ context.Context, _ string, uploadID string, n int32, data []byte) (storage.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.uploads[uploadID]
	if !ok {
		return storage.Part{}, fmt.Errorf("no upload %s", uploadID)
	}
	parts[n] = data
	return storage.Part{Number: n, ETag: fmt.Sprintf("etag-%d", n)}, nil
}

func (m *memObjects) CompleteMultipart(_ context.Context, key, uploadID string, parts []storage.Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.uploads[uploadID]
	if !ok {
		return fmt.Errorf("no upload %s", uploadID)
	}
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(stored[p.Number])
	}
	m.objects[key] = buf.Bytes()
	delete(m.uploads, uploadID)
	return nil
}

func (m *memObjects) AbortMultipart(_ context.Context, _ string, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	return nil
}

func (m *memObjects) has(key string) bool {
	ok, _ := m.Exists(context.Background(), key)
	return ok
}
