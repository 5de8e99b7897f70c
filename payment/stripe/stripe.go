// Package stripe is a payment.Gateway over Stripe Checkout sessions.
package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/payment"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

const (
	metaUserID   = "user_id"
	metaCartIDs  = "cart_item_ids"
	metaCustomer = "customer_name"

	// sessionPlaceholder is substituted by Stripe on redirect.
	sessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

type Gateway struct {
	api *stripecl.API
	cfg config.Stripe
}

func New(api *stripecl.API, cfg config.Stripe) *Gateway {
	return &Gateway{api: api, cfg: cfg}
}

func (g *Gateway) Name() string { return "stripe" }

func (g *Gateway) successURL(callback string) string {
	if g.cfg.SuccessURL != "" {
		return g.cfg.SuccessURL
	}
	sep := "?"
	if strings.Contains(callback, "?") {
		sep = "&"
	}
	return callback + sep + "reference=" + sessionPlaceholder
}

func (g *Gateway) Initialize(ctx context.Context, r payment.InitRequest) (payment.Authorization, error) {
	currency := strings.ToLower(r.Currency)

	lines := r.Lines
	if len(lines) == 0 {
		lines = []payment.LineItem{{Name: "Order", Amount: r.Amount}}
	}

	li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines))
	for _, l := range lines {
		li = append(li, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),

			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				TaxBehavior: stripe.String("inclusive"),
				UnitAmount:  stripe.Int64(payment.ToMinor(l.Amount)),

				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
				},
			},
		})
	}

	cancel := g.cfg.CancelURL
	if cancel == "" {
		cancel = r.CallbackURL
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(g.successURL(r.CallbackURL)),
		CancelURL:         stripe.String(cancel),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         li,
		ClientReferenceID: stripe.String(r.Metadata.UserID),
	}
	if r.Email != "" {
		params.CustomerEmail = stripe.String(r.Email)
	}
	params.Context = ctx
	params.AddMetadata(metaUserID, r.Metadata.UserID)
	params.AddMetadata(metaCartIDs, strings.Join(r.Metadata.CartItemIDs, ","))
	if r.Metadata.CustomerName != "" {
		params.AddMetadata(metaCustomer, r.Metadata.CustomerName)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return payment.Authorization{}, fmt.Errorf("%w: creating stripe session: %v", payment.ErrInitialize, err)
	}

	return payment.Authorization{
		AuthorizationURL: s.URL,
		Reference:        s.ID,
	}, nil
}

// Transaction converts a checkout session.
func Transaction(s *stripe.CheckoutSession) payment.Transaction {
	t := payment.Transaction{
		Reference: s.ID,
		Amount:    payment.FromMinor(s.AmountTotal),
		Currency:  strings.ToUpper(string(s.Currency)),
		Status:    string(s.PaymentStatus),
		Metadata: payment.Metadata{
			UserID:       s.Metadata[metaUserID],
			CustomerName: s.Metadata[metaCustomer],
		},
	}
	if ids := s.Metadata[metaCartIDs]; ids != "" {
		t.Metadata.CartItemIDs = strings.Split(ids, ",")
	}
	return t
}

func (g *Gateway) Fetch(ctx context.Context, reference string) (payment.Transaction, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.Get(reference, params)
	if err != nil {
		return payment.Transaction{}, fmt.Errorf("fetching stripe session[%s]: %w", reference, err)
	}
	return Transaction(s), nil
}

func (g *Gateway) Verify(ctx context.Context, reference string) (payment.Transaction, error) {
	t, err := g.Fetch(ctx, reference)
	if err != nil {
		return payment.Transaction{}, fmt.Errorf("%w: %v", payment.ErrVerify, err)
	}
	if t.Status != string(stripe.CheckoutSessionPaymentStatusPaid) {
		return t, fmt.Errorf("stripe session[%s] is %s: %w", reference, t.Status, payment.ErrNotPaid)
	}
	return t, nil
}

// Cancel expires an open session so it can no longer be paid.
func (g *Gateway) Cancel(ctx context.Context, reference string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.api.CheckoutSessions.Expire(reference, params); err != nil {
		return fmt.Errorf("expiring stripe session[%s]: %w", reference, err)
	}
	return nil
}
