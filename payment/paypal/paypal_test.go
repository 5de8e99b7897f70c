package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/payment"
	"github.com/plutov/paypal/v4"
)

type mockPaypal struct {
	mu       sync.Mutex
	status   map[string]string
	captures int
}

func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func order(id, status string) map[string]any {
	return map[string]any{
		"id":     id,
		"status": status,
		"links": []map[string]any{
			{"href": "https://paypal.test/checkoutnow?token=" + id, "rel": "approve", "method": "GET"},
		},
		"purchase_units": []map[string]any{{
			"custom_id": "u1",
			"amount":    map[string]any{"currency_code": "KES", "value": "150.00"},
		}},
	}
}

func (m *mockPaypal) handle() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Units []paypal.PurchaseUnitRequest `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.Units) != 1 || in.Units[0].Amount.Value != "150" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		m.status["ORDER-1"] = "CREATED"
		w.WriteHeader(http.StatusCreated)
		respond(w, order("ORDER-1", "CREATED"))
	}).Methods(http.MethodPost)

	r.HandleFunc("/v2/checkout/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		id := mux.Vars(r)["id"]
		respond(w, order(id, m.status[id]))
	}).Methods(http.MethodGet)

	r.HandleFunc("/v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		id := mux.Vars(r)["id"]
		m.captures++
		m.status[id] = "COMPLETED"
		w.WriteHeader(http.StatusCreated)
		respond(w, map[string]any{"id": id, "status": "COMPLETED"})
	}).Methods(http.MethodPost)

	return r
}

func newGateway(t *testing.T) (*Gateway, *mockPaypal) {
	m := &mockPaypal{status: make(map[string]string)}
	srv := httptest.NewServer(m.handle())
	t.Cleanup(srv.Close)

	pp, err := paypal.NewClient("client", "secret", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return New(pp, config.Paypal{}), m
}

func TestCheckoutFlow(t *testing.T) {
	g, m := newGateway(t)
	ctx := context.Background()

	auth, err := g.Initialize(ctx, payment.InitRequest{
		Amount:      150,
		Currency:    "KES",
		CallbackURL: "http://localhost/checkout/verify",
		Metadata:    payment.Metadata{UserID: "u1"},
		Lines:       []payment.LineItem{{Name: "book", Amount: 150}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if auth.Reference != "ORDER-1" || auth.AuthorizationURL == "" {
		t.Fatalf("unexpected authorization %+v", auth)
	}

	if _, err := g.Verify(ctx, auth.Reference); !errors.Is(err, payment.ErrNotPaid) {
		t.Fatalf("got %v, want ErrNotPaid before approval", err)
	}

	m.mu.Lock()
	m.status["ORDER-1"] = "APPROVED"
	m.mu.Unlock()

	for i := 0; i < 2; i++ {
		tr, err := g.Verify(ctx, auth.Reference)
		if err != nil {
			t.Fatalf("verification %d: %v", i, err)
		}
		if tr.Amount != 150 || tr.Metadata.UserID != "u1" || tr.Status != "COMPLETED" {
			t.Fatalf("verification %d: unexpected transaction %+v", i, tr)
		}
	}

	if m.captures != 1 {
		t.Fatalf("order captured %d times, want 1", m.captures)
	}
}
