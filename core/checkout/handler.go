package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/irsalhamdi/e-commerce-media/api/web"
	"github.com/irsalhamdi/e-commerce-media/api/weberr"
	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"github.com/irsalhamdi/e-commerce-media/payment"
	gwstripe "github.com/irsalhamdi/e-commerce-media/payment/stripe"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

type InitiateRequest struct {
	CartItemIDs []string `json:"cartItemIds" validate:"omitempty,dive,uuid"`
}

type VerifyRequest struct {
	Reference string `json:"reference" validate:"required"`
}

func verifyError(err error) error {
	switch {
	case errors.Is(err, ErrPurchaseNotFound):
		return weberr.NotFound(err)
	case errors.Is(err, payment.ErrNotPaid):
		return weberr.NewError(err, payment.ErrNotPaid.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrGatewayVerify):
		return weberr.NewError(err, ErrGatewayVerify.Error(), http.StatusInternalServerError)
	}
	return err
}

func HandleInitiate(o *Orchestrator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in InitiateRequest
		if err := web.Decode(w, r, &in); err != nil && !errors.Is(err, io.EOF) {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		res, err := o.Initiate(ctx, Customer{
			UserID: clm.UserID,
			Email:  clm.Email,
			Name:   clm.Name,
		}, in.CartItemIDs)
		switch {
		case errors.Is(err, ErrEmptyCart):
			return weberr.Reason(err, http.StatusBadRequest)
		case errors.Is(err, ErrGatewayInit):
			return weberr.NewError(err, ErrGatewayInit.Error(), http.StatusInternalServerError)
		case errors.Is(err, ErrDuplicateReference):
			return weberr.Conflict(err)
		case err != nil:
			return fmt.Errorf("checking out cart of user[%s]: %w", clm.UserID, err)
		}

		status := http.StatusOK
		if res.Free {
			status = http.StatusCreated
		}
		return web.Respond(ctx, w, res, status)
	}
}

func HandleVerify(o *Orchestrator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in VerifyRequest
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Reason(err, http.StatusBadRequest)
		}

		v, err := o.Verify(ctx, clm.UserID, in.Reference)
		if err != nil {
			return verifyError(err)
		}

		return web.Respond(ctx, w, v, http.StatusOK)
	}
}

// callbackReference reads the reference each gateway appends to its return
// url: paystack sends reference and trxref, paypal sends token.
func callbackReference(q url.Values) string {
	for _, k := range []string{"reference", "trxref", "token"} {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func withQuery(base string, kv ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// HandleVerifyRedirect is the gateway return url. The browser lands on the
// library when the payment verifies and back on the cart otherwise.
func HandleVerifyRedirect(o *Orchestrator, cfg config.Web, log logrus.FieldLogger) web.Handler {
	return web.Adapt(func(ctx context.Context, r *http.Request) (web.Outcome, error) {
		clm, err := claims.Get(ctx)
		if err != nil {
			return nil, weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ref := callbackReference(r.URL.Query())
		if ref == "" {
			return web.Redirect{Location: withQuery(cfg.CartURL, "payment", "missing-reference")}, nil
		}

		if _, err := o.Verify(ctx, clm.UserID, ref); err != nil {
			log.WithFields(logrus.Fields{
				"user_id":   clm.UserID,
				"reference": ref,
			}).WithError(err).Warn("payment callback not verified")

			reason := "failed"
			if errors.Is(err, ErrPurchaseNotFound) {
				reason = "not-found"
			}
			return web.Redirect{Location: withQuery(cfg.CartURL, "payment", reason, "reference", ref)}, nil
		}

		return web.Redirect{Location: withQuery(cfg.LibraryURL, "payment", "success", "reference", ref)}, nil
	})
}

// HandleStripeWebhook settles checkout sessions Stripe reports as completed.
func HandleStripeWebhook(o *Orchestrator, cfg config.Stripe, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if event.Type != "checkout.session.completed" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		var session stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &session); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		if session.Mode != stripe.CheckoutSessionModePayment {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			log.WithField("reference", session.ID).Info("stripe session completed without payment")
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		t := gwstripe.Transaction(&session)
		userID := t.Metadata.UserID
		if userID == "" {
			userID = session.ClientReferenceID
		}

		if _, err := o.Settle(ctx, userID, t); err != nil {
			if errors.Is(err, ErrPurchaseNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("the session[%s] was paid but its fulfillment failed: %w", session.ID, err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
