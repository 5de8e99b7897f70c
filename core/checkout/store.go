package checkout

import (
	"context"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/cart"
	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/jmoiron/sqlx"
)

// SQLStore is the postgres backed Store.
type SQLStore struct {
	DB *sqlx.DB
}

func (s SQLStore) SelectedItems(ctx context.Context, userID string, ids []string) ([]cart.Item, map[string]product.Product, error) {
	items, err := cart.FetchSelected(ctx, s.DB, userID, ids)
	if err != nil {
		return nil, nil, err
	}

	products, err := cart.Products(ctx, s.DB, items)
	if err != nil {
		return nil, nil, err
	}
	return items, products, nil
}

func (s SQLStore) Convert(ctx context.Context, userID string, ps []purchase.Purchase, itemIDs []string) error {
	return database.Transaction(s.DB, func(tx sqlx.ExtContext) error {
		if err := purchase.CreateMany(ctx, tx, ps); err != nil {
			return err
		}
		_, err := cart.DeleteItems(ctx, tx, userID, itemIDs)
		return err
	})
}

func (s SQLStore) ByReference(ctx context.Context, ref, userID string) ([]purchase.Purchase, error) {
	return purchase.FetchByReference(ctx, s.DB, ref, userID)
}

func (s SQLStore) Complete(ctx context.Context, ref, userID string, itemIDs []string, now time.Time) (int64, error) {
	var n int64

	err := database.Transaction(s.DB, func(tx sqlx.ExtContext) error {
		var err error
		if n, err = purchase.Complete(ctx, tx, ref, userID, now); err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if len(itemIDs) == 0 {
			return cart.Clear(ctx, tx, userID)
		}
		_, err = cart.DeleteItems(ctx, tx, userID, itemIDs)
		return err
	})
	return n, err
}
