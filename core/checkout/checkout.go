// Package checkout turns a cart into purchases. Carts that price to zero
// become completed purchases at once; anything else goes through a payment
// gateway and completes on verification.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/cart"
	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/irsalhamdi/e-commerce-media/payment"
	"github.com/irsalhamdi/e-commerce-media/random"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
)

const (
	pendingWindow = 48 * time.Hour
	freeProvider  = "free"
)

var (
	ErrEmptyCart          = errors.New("no items to checkout")
	ErrGatewayInit        = errors.New("payment could not be started")
	ErrGatewayVerify      = errors.New("payment could not be verified")
	ErrPurchaseNotFound   = errors.New("no purchase found for this reference")
	ErrDuplicateReference = purchase.ErrDuplicateReference
)

// Store is the persistence checkout needs. Convert and Complete must each be
// atomic.
type Store interface {
	SelectedItems(ctx context.Context, userID string, ids []string) ([]cart.Item, map[string]product.Product, error)
	// Convert creates the purchases and removes the converted cart items.
	Convert(ctx context.Context, userID string, ps []purchase.Purchase, itemIDs []string) error
	ByReference(ctx context.Context, ref, userID string) ([]purchase.Purchase, error)
	// Complete flips the PENDING purchases under ref and removes the given
	// cart items, or the whole cart when itemIDs is empty. It returns how
	// many purchases changed.
	Complete(ctx context.Context, ref, userID string, itemIDs []string, now time.Time) (int64, error)
}

// Notifier hears about purchases that just completed.
type Notifier interface {
	Completed(ctx context.Context, userID string, ps []purchase.Purchase, amount int)
}

type Customer struct {
	UserID string
	Email  string
	Name   string
}

type Result struct {
	Free          bool                   `json:"free"`
	Total         int                    `json:"total"`
	Fee           int                    `json:"fee,omitempty"`
	Reference     string                 `json:"reference,omitempty"`
	Authorization *payment.Authorization `json:"authorization,omitempty"`
	Purchases     []purchase.Purchase    `json:"purchases"`
}

type Verification struct {
	Reference string              `json:"reference"`
	Amount    int                 `json:"amount"`
	Purchases []purchase.Purchase `json:"purchases"`
}

type Config struct {
	Store       Store
	Gateway     payment.Gateway
	Currency    string
	CallbackURL string
	Notifier    Notifier
	Log         logrus.FieldLogger
}

type Orchestrator struct {
	store       Store
	gateway     payment.Gateway
	currency    string
	callbackURL string
	notifier    Notifier
	log         logrus.FieldLogger

	now      func() time.Time
	freeRef  func() string
	newToken func() (string, error)
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		store:       cfg.Store,
		gateway:     cfg.Gateway,
		currency:    cfg.Currency,
		callbackURL: cfg.CallbackURL,
		notifier:    cfg.Notifier,
		log:         cfg.Log,
		now:         func() time.Time { return time.Now().UTC() },
		freeRef:     func() string { return purchase.FreePrefix + ksuid.New().String() },
		newToken:    random.DownloadToken,
	}
}

func (o *Orchestrator) newPurchase(userID string, l cart.Line, status purchase.Status, ref, provider string, expires time.Time, now time.Time) (purchase.Purchase, error) {
	tok, err := o.newToken()
	if err != nil {
		return purchase.Purchase{}, fmt.Errorf("generating download token: %w", err)
	}

	return purchase.Purchase{
		ID:            validate.GenerateID(),
		UserID:        userID,
		ProductID:     l.ProductID,
		Format:        l.Format,
		Amount:        l.Price.FinalPrice,
		Currency:      o.currency,
		PaymentRef:    ref,
		Provider:      provider,
		Status:        status,
		ExpiresAt:     expires,
		DownloadToken: tok,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Initiate checks out the selected cart items, or the whole cart when none
// are selected.
func (o *Orchestrator) Initiate(ctx context.Context, c Customer, itemIDs []string) (Result, error) {
	items, products, err := o.store.SelectedItems(ctx, c.UserID, itemIDs)
	if err != nil {
		return Result{}, fmt.Errorf("loading cart items: %w", err)
	}

	now := o.now()
	priced := cart.Price(items, products, now)
	if len(priced.Items) == 0 {
		return Result{}, ErrEmptyCart
	}

	ids := make([]string, len(priced.Items))
	for i, l := range priced.Items {
		ids[i] = l.ID
	}

	if priced.Total == 0 {
		return o.free(ctx, c, priced, ids, now)
	}
	return o.paid(ctx, c, priced, ids, now)
}

func (o *Orchestrator) free(ctx context.Context, c Customer, priced cart.Cart, ids []string, now time.Time) (Result, error) {
	expires := now.AddDate(1, 0, 0)

	ps := make([]purchase.Purchase, 0, len(priced.Items))
	for _, l := range priced.Items {
		p, err := o.newPurchase(c.UserID, l, purchase.StatusCompleted, o.freeRef(), freeProvider, expires, now)
		if err != nil {
			return Result{}, err
		}
		ps = append(ps, p)
	}

	if err := o.store.Convert(ctx, c.UserID, ps, ids); err != nil {
		return Result{}, fmt.Errorf("creating free purchases: %w", err)
	}

	o.log.WithFields(logrus.Fields{
		"user_id":   c.UserID,
		"purchases": len(ps),
	}).Info("free checkout completed")

	return Result{Free: true, Purchases: ps}, nil
}

func (o *Orchestrator) paid(ctx context.Context, c Customer, priced cart.Cart, ids []string, now time.Time) (Result, error) {
	lines := make([]payment.LineItem, len(priced.Items))
	for i, l := range priced.Items {
		lines[i] = payment.LineItem{
			Name:   fmt.Sprintf("%s (%s)", l.Product.Title, l.Format),
			Amount: l.Price.FinalPrice,
		}
	}

	auth, err := o.gateway.Initialize(ctx, payment.InitRequest{
		Email:       c.Email,
		Amount:      priced.Total,
		Currency:    o.currency,
		CallbackURL: o.callbackURL,
		Lines:       lines,
		Metadata: payment.Metadata{
			UserID:       c.UserID,
			CartItemIDs:  ids,
			CustomerName: c.Name,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrGatewayInit, err)
	}

	expires := now.Add(pendingWindow)
	ps := make([]purchase.Purchase, 0, len(priced.Items))
	for _, l := range priced.Items {
		p, err := o.newPurchase(c.UserID, l, purchase.StatusPending, auth.Reference, o.gateway.Name(), expires, now)
		if err != nil {
			o.compensate(ctx, auth.Reference, err)
			return Result{}, err
		}
		ps = append(ps, p)
	}

	if err := o.store.Convert(ctx, c.UserID, ps, ids); err != nil {
		o.compensate(ctx, auth.Reference, err)
		return Result{}, fmt.Errorf("creating pending purchases for reference[%s]: %w", auth.Reference, err)
	}

	return Result{
		Total:         priced.Total,
		Fee:           payment.Fee(priced.Total),
		Reference:     auth.Reference,
		Authorization: &auth,
		Purchases:     ps,
	}, nil
}

// compensate voids a gateway transaction whose purchases could not be
// stored. Its authorization url is never handed out, so when the gateway
// cannot cancel it is left to lapse.
func (o *Orchestrator) compensate(ctx context.Context, ref string, cause error) {
	log := o.log.WithFields(logrus.Fields{
		"reference": ref,
		"gateway":   o.gateway.Name(),
		"cause":     cause,
	})

	cn, ok := o.gateway.(payment.Canceler)
	if !ok {
		log.Warn("gateway transaction abandoned")
		return
	}
	if err := cn.Cancel(ctx, ref); err != nil {
		log.WithError(err).Error("gateway transaction could not be cancelled")
		return
	}
	log.Info("gateway transaction cancelled")
}

// Verify confirms payment of ref and completes the user's purchases under it.
// Verifying an already completed reference succeeds without changes.
func (o *Orchestrator) Verify(ctx context.Context, userID, ref string) (Verification, error) {
	if strings.HasPrefix(ref, purchase.FreePrefix) {
		return o.verifyFree(ctx, userID, ref)
	}

	t, err := o.gateway.Verify(ctx, ref)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %w", ErrGatewayVerify, err)
	}
	t.Reference = ref

	return o.Settle(ctx, userID, t)
}

// Settle completes the user's purchases under a transaction the gateway
// already reported as paid, such as one delivered by a signed webhook.
func (o *Orchestrator) Settle(ctx context.Context, userID string, t payment.Transaction) (Verification, error) {
	ref := t.Reference

	ps, err := o.store.ByReference(ctx, ref, userID)
	if err != nil {
		return Verification{}, err
	}
	if len(ps) == 0 {
		return Verification{}, ErrPurchaseNotFound
	}

	var due int
	for _, p := range ps {
		due += p.Amount
	}
	if t.Amount < due {
		return Verification{}, fmt.Errorf("%w: paid %d of %d", ErrGatewayVerify, t.Amount, due)
	}

	n, err := o.store.Complete(ctx, ref, userID, t.Metadata.CartItemIDs, o.now())
	if err != nil {
		return Verification{}, fmt.Errorf("completing purchases for reference[%s]: %w", ref, err)
	}

	ps, err = o.store.ByReference(ctx, ref, userID)
	if err != nil {
		return Verification{}, err
	}

	if n > 0 {
		o.log.WithFields(logrus.Fields{
			"user_id":   userID,
			"reference": ref,
			"completed": n,
		}).Info("payment verified")

		if o.notifier != nil {
			o.notifier.Completed(ctx, userID, ps, t.Amount)
		}
	}

	return Verification{Reference: ref, Amount: t.Amount, Purchases: ps}, nil
}

func (o *Orchestrator) verifyFree(ctx context.Context, userID, ref string) (Verification, error) {
	ps, err := o.store.ByReference(ctx, ref, userID)
	if err != nil {
		return Verification{}, err
	}
	if len(ps) == 0 {
		return Verification{}, ErrPurchaseNotFound
	}
	return Verification{Reference: ref, Purchases: ps}, nil
}
