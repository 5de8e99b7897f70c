// Package paystack is a payment.Gateway over the Paystack REST API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/payment"
)

const statusSuccess = "success"

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func New(cfg config.Paystack, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		secret:  cfg.SecretKey,
		http:    hc,
	}
}

func (c *Client) Name() string { return "paystack" }

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transaction struct {
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	Metadata  json.RawMessage `json:"metadata"`
	PaidAt    *time.Time      `json:"paid_at"`
}

func (t transaction) toPayment() payment.Transaction {
	out := payment.Transaction{
		Reference: t.Reference,
		Amount:    payment.FromMinor(t.Amount),
		Currency:  t.Currency,
		Status:    t.Status,
		PaidAt:    t.PaidAt,
	}
	// Paystack echoes metadata back as an object, or as "" when none was set.
	if len(t.Metadata) > 0 && t.Metadata[0] == '{' {
		_ = json.Unmarshal(t.Metadata, &out.Metadata)
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling paystack: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding paystack response with status %d: %w", resp.StatusCode, err)
	}
	if !env.Status {
		msg := env.Message
		if msg == "" {
			msg = resp.Status
		}
		return errors.New(msg)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding paystack data: %w", err)
		}
	}
	return nil
}

func (c *Client) Initialize(ctx context.Context, r payment.InitRequest) (payment.Authorization, error) {
	body := struct {
		Email       string           `json:"email"`
		Amount      int64            `json:"amount"`
		Currency    string           `json:"currency"`
		CallbackURL string           `json:"callback_url"`
		Metadata    payment.Metadata `json:"metadata"`
	}{
		Email:       r.Email,
		Amount:      payment.ToMinor(r.Amount),
		Currency:    r.Currency,
		CallbackURL: r.CallbackURL,
		Metadata:    r.Metadata,
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return payment.Authorization{}, fmt.Errorf("%w: %v", payment.ErrInitialize, err)
	}

	return payment.Authorization{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (payment.Transaction, error) {
	var t transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &t); err != nil {
		return payment.Transaction{}, fmt.Errorf("%w: %v", payment.ErrVerify, err)
	}
	if t.Status != statusSuccess {
		return t.toPayment(), fmt.Errorf("transaction[%s] is %s: %w", reference, t.Status, payment.ErrNotPaid)
	}
	return t.toPayment(), nil
}

// Fetch looks a transaction up by reference without requiring it be paid.
func (c *Client) Fetch(ctx context.Context, reference string) (payment.Transaction, error) {
	var t transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/"+url.PathEscape(reference), nil, &t); err != nil {
		return payment.Transaction{}, fmt.Errorf("fetching transaction[%s]: %w", reference, err)
	}
	return t.toPayment(), nil
}
