// Package paypal is a payment.Gateway over PayPal orders.
package paypal

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/payment"
	"github.com/plutov/paypal/v4"
)

const (
	statusCompleted = "COMPLETED"
	statusApproved  = "APPROVED"
)

type Gateway struct {
	pp  *paypal.Client
	cfg config.Paypal
}

func New(pp *paypal.Client, cfg config.Paypal) *Gateway {
	return &Gateway{pp: pp, cfg: cfg}
}

func (g *Gateway) Name() string { return "paypal" }

func money(currency string, amount int) *paypal.Money {
	return &paypal.Money{Currency: currency, Value: strconv.Itoa(amount)}
}

// Initialize creates an order to be approved by the buyer. PayPal custom ids
// are short, so only the user id travels with the order.
func (g *Gateway) Initialize(ctx context.Context, r payment.InitRequest) (payment.Authorization, error) {
	items := make([]paypal.Item, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, paypal.Item{
			Quantity:   "1",
			Name:       l.Name,
			UnitAmount: money(r.Currency, l.Amount),
		})
	}

	units := []paypal.PurchaseUnitRequest{{
		CustomID: r.Metadata.UserID,
		Items:    items,

		Amount: &paypal.PurchaseUnitAmount{
			Currency: r.Currency,
			Value:    strconv.Itoa(r.Amount),

			Breakdown: &paypal.PurchaseUnitAmountBreakdown{
				ItemTotal: money(r.Currency, r.Amount),
			},
		},
	}}

	ret := g.cfg.ReturnURL
	if ret == "" {
		ret = r.CallbackURL
	}
	cancel := g.cfg.CancelURL
	if cancel == "" {
		cancel = r.CallbackURL
	}
	app := &paypal.ApplicationContext{ReturnURL: ret, CancelURL: cancel}

	ord, err := g.pp.CreateOrder(ctx, "CAPTURE", units, nil, app)
	if err != nil {
		return payment.Authorization{}, fmt.Errorf("%w: creating paypal order: %v", payment.ErrInitialize, err)
	}

	var approve string
	for _, l := range ord.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			approve = l.Href
			break
		}
	}

	return payment.Authorization{AuthorizationURL: approve, Reference: ord.ID}, nil
}

func transaction(ord *paypal.Order) payment.Transaction {
	t := payment.Transaction{Reference: ord.ID, Status: ord.Status}
	if len(ord.PurchaseUnits) > 0 {
		pu := ord.PurchaseUnits[0]
		t.Metadata.UserID = pu.CustomID
		if pu.Amount != nil {
			t.Currency = pu.Amount.Currency
			if v, err := strconv.ParseFloat(strings.TrimSpace(pu.Amount.Value), 64); err == nil {
				t.Amount = int(math.Round(v))
			}
		}
	}
	return t
}

func (g *Gateway) Fetch(ctx context.Context, reference string) (payment.Transaction, error) {
	ord, err := g.pp.GetOrder(ctx, reference)
	if err != nil {
		return payment.Transaction{}, fmt.Errorf("fetching paypal order[%s]: %w", reference, err)
	}
	return transaction(ord), nil
}

// Verify captures an approved order. A captured order verifies as is, so a
// repeated verification does not capture twice.
func (g *Gateway) Verify(ctx context.Context, reference string) (payment.Transaction, error) {
	ord, err := g.pp.GetOrder(ctx, reference)
	if err != nil {
		return payment.Transaction{}, fmt.Errorf("%w: fetching paypal order[%s]: %v", payment.ErrVerify, reference, err)
	}
	t := transaction(ord)

	switch ord.Status {
	case statusCompleted:
		return t, nil
	case statusApproved:
		resp, err := g.pp.CaptureOrder(ctx, reference, paypal.CaptureOrderRequest{})
		if err != nil {
			return t, fmt.Errorf("%w: capturing paypal order[%s]: %v", payment.ErrVerify, reference, err)
		}
		if resp.Status != statusCompleted {
			return t, fmt.Errorf("captured paypal order[%s] is %s: %w", reference, resp.Status, payment.ErrNotPaid)
		}
		t.Status = resp.Status
		return t, nil
	}

	return t, fmt.Errorf("paypal order[%s] is %s: %w", reference, ord.Status, payment.ErrNotPaid)
}
