package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/e-commerce-media/api/web"
	mock "github.com/stripe/stripe-mock/param"
)

type paystackTxn struct {
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	Metadata  json.RawMessage `json:"metadata"`
}

type paystackReply struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// mockPaystack records initialized transactions. They verify as paid once
// pay is called for their reference.
type mockPaystack struct {
	mu           sync.Mutex
	txns         map[string]*paystackTxn
	next         int
	expectedKobo int64
}

func newMockPaystack() *mockPaystack {
	return &mockPaystack{txns: map[string]*paystackTxn{}}
}

func (m *mockPaystack) expect(amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expectedKobo = int64(amount) * 100
}

func (m *mockPaystack) pay(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.txns[ref]; ok {
		t.Status = "success"
	}
}

func (m *mockPaystack) handle() http.Handler {
	initialize := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Email    string          `json:"email"`
			Amount   int64           `json:"amount"`
			Currency string          `json:"currency"`
			Metadata json.RawMessage `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			web.Respond(context.Background(), w, paystackReply{Message: err.Error()}, 400)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if m.expectedKobo != 0 && in.Amount != m.expectedKobo {
			msg := fmt.Sprintf("amount %d, want %d", in.Amount, m.expectedKobo)
			web.Respond(context.Background(), w, paystackReply{Message: msg}, 400)
			return
		}

		m.next++
		ref := fmt.Sprintf("ps_ref_%d", m.next)
		m.txns[ref] = &paystackTxn{
			Reference: ref,
			Amount:    in.Amount,
			Currency:  in.Currency,
			Status:    "abandoned",
			Metadata:  in.Metadata,
		}

		web.Respond(context.Background(), w, paystackReply{
			Status: true,
			Data: map[string]string{
				"authorization_url": "https://checkout.paystack.test/" + ref,
				"access_code":       "code_" + ref,
				"reference":         ref,
			},
		}, 200)
	})

	verify := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := mux.Vars(r)["ref"]

		m.mu.Lock()
		t, ok := m.txns[ref]
		var out paystackTxn
		if ok {
			out = *t
		}
		m.mu.Unlock()

		if !ok {
			web.Respond(context.Background(), w, paystackReply{Message: "Transaction reference not found"}, 400)
			return
		}
		web.Respond(context.Background(), w, paystackReply{Status: true, Data: out}, 200)
	})

	r := mux.NewRouter()
	r.Handle("/transaction/initialize", initialize).Methods("POST")
	r.Handle("/transaction/verify/{ref}", verify).Methods("GET")
	return r
}

type mockStripe struct {
	mu       sync.Mutex
	expected []int
	next     int
}

func (m *mockStripe) expect(amounts ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expected = amounts
}

func (m *mockStripe) handle() http.Handler {
	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}
		var lines []any
		switch li := params["line_items"].(type) {
		case []any:
			lines = li
		case map[string]any:
			for _, v := range li {
				lines = append(lines, v)
			}
		default:
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		n := 0
		tot := 0
		for _, li := range lines {
			it := li.(map[string]any)

			if it["quantity"] != "1" {
				web.Respond(context.Background(), w, nil, 400)
				return
			}

			pd := it["price_data"].(map[string]any)
			amount, err := strconv.ParseInt(pd["unit_amount"].(string), 10, 0)
			if err != nil {
				web.Respond(context.Background(), w, err, 400)
				return
			}

			tot += int(amount / 100)
			n++
		}

		exp := 0
		for _, a := range m.expected {
			exp += a
		}
		if n != len(m.expected) || tot != exp {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.next++
		id := fmt.Sprintf("cs_test_%d", m.next)
		web.Respond(context.Background(), w, map[string]any{
			"id":     id,
			"object": "checkout.session",
			"url":    "https://checkout.stripe.test/" + id,
		}, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/checkout/sessions", checkout).Methods("POST")
	return r
}
