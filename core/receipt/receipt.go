// Package receipt mails a receipt once a checkout completes.
package receipt

import (
	"context"
	"fmt"

	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/irsalhamdi/e-commerce-media/core/user"
	"github.com/irsalhamdi/e-commerce-media/email"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type Sender interface {
	SendReceipt(r email.Receipt) error
}

type Runner interface {
	Add(fn func() error)
}

// Directory resolves the names a receipt shows.
type Directory interface {
	User(ctx context.Context, id string) (user.User, error)
	Product(ctx context.Context, id string) (product.Product, error)
}

type SQLDirectory struct {
	DB *sqlx.DB
}

func (d SQLDirectory) User(ctx context.Context, id string) (user.User, error) {
	return user.Fetch(ctx, d.DB, id)
}

func (d SQLDirectory) Product(ctx context.Context, id string) (product.Product, error) {
	return product.Fetch(ctx, d.DB, id)
}

type Notifier struct {
	Directory Directory
	Sender    Sender
	Runner    Runner
	Log       logrus.FieldLogger
}

// Completed builds the receipt with the request context and mails it in the
// background. Failures are logged only: the purchase stands either way.
func (n Notifier) Completed(ctx context.Context, userID string, ps []purchase.Purchase, amount int) {
	if len(ps) == 0 {
		return
	}

	r, err := n.build(ctx, userID, ps, amount)
	if err != nil {
		n.Log.WithError(err).WithField("reference", ps[0].PaymentRef).Error("building receipt")
		return
	}

	n.Runner.Add(func() error {
		if err := n.Sender.SendReceipt(r); err != nil {
			return err
		}
		n.Log.WithFields(logrus.Fields{
			"reference": r.Reference,
			"email":     r.Email,
		}).Info("receipt sent")
		return nil
	})
}

func (n Notifier) build(ctx context.Context, userID string, ps []purchase.Purchase, amount int) (email.Receipt, error) {
	u, err := n.Directory.User(ctx, userID)
	if err != nil {
		return email.Receipt{}, fmt.Errorf("fetching user[%s]: %w", userID, err)
	}

	r := email.Receipt{
		Name:      u.Name,
		Email:     u.Email,
		Reference: ps[0].PaymentRef,
		Currency:  ps[0].Currency,
		Total:     amount,
	}

	for _, pu := range ps {
		title := pu.ProductID
		if p, err := n.Directory.Product(ctx, pu.ProductID); err == nil {
			title = p.Title
		}
		r.Items = append(r.Items, email.ReceiptItem{
			Title:  title,
			Format: string(pu.Format),
			Amount: pu.Amount,
		})
	}

	return r, nil
}
