// Package payment defines what the storefront needs from a payment gateway.
// Amounts cross this boundary in whole currency units; each gateway converts
// to its wire unit itself.
package payment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInitialize = errors.New("payment initialization failed")
	ErrVerify     = errors.New("payment verification failed")
	ErrNotPaid    = errors.New("payment was not successful")
)

type Metadata struct {
	UserID       string   `json:"user_id"`
	CartItemIDs  []string `json:"cart_item_ids"`
	CustomerName string   `json:"customer_name,omitempty"`
}

type LineItem struct {
	Name   string
	Amount int
}

type InitRequest struct {
	Email       string
	Amount      int
	Currency    string
	CallbackURL string
	Metadata    Metadata
	Lines       []LineItem
}

type Authorization struct {
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode,omitempty"`
	Reference        string `json:"reference"`
}

type Transaction struct {
	Reference string     `json:"reference"`
	Amount    int        `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	Metadata  Metadata   `json:"metadata"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

type Gateway interface {
	Name() string
	Initialize(ctx context.Context, req InitRequest) (Authorization, error)
	// Verify confirms the transaction was paid. An unpaid transaction is an
	// error wrapping ErrNotPaid.
	Verify(ctx context.Context, reference string) (Transaction, error)
	Fetch(ctx context.Context, reference string) (Transaction, error)
}

// Canceler is implemented by gateways that can void a transaction nobody
// has paid yet.
type Canceler interface {
	Cancel(ctx context.Context, reference string) error
}

// ToMinor converts whole units to the hundredths most gateways expect.
func ToMinor(amount int) int64 {
	return int64(amount) * 100
}

// FromMinor converts hundredths back to whole units, rounding half up.
func FromMinor(minor int64) int {
	return int((minor + 50) / 100)
}

const (
	feeRateBP = 150 // 1.5%
	feeCap    = 100
)

// Fee is the processing fee charged on amount: 1.5% rounded, capped at 100.
func Fee(amount int) int {
	if amount <= 0 {
		return 0
	}
	fee := (2*amount*feeRateBP + 10000) / 20000
	if fee > feeCap {
		return feeCap
	}
	return fee
}
