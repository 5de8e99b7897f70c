package delivery

import (
	"context"
	"errors"

	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/core/purchase"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/jmoiron/sqlx"
)

// SQLPurchases is the postgres backed Purchases.
type SQLPurchases struct {
	DB *sqlx.DB
}

func (s SQLPurchases) Lookup(ctx context.Context, purchaseID string) (purchase.Purchase, product.Product, error) {
	pu, err := purchase.Fetch(ctx, s.DB, purchaseID)
	if err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return purchase.Purchase{}, product.Product{}, ErrNotFound
		}
		return purchase.Purchase{}, product.Product{}, err
	}

	prod, err := product.Fetch(ctx, s.DB, pu.ProductID)
	if err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return purchase.Purchase{}, product.Product{}, ErrNotFound
		}
		return purchase.Purchase{}, product.Product{}, err
	}
	return pu, prod, nil
}

func (s SQLPurchases) Record(ctx context.Context, ceiling int, d purchase.Download) (int, error) {
	n, err := purchase.RecordDelivery(ctx, s.DB, ceiling, d)
	if errors.Is(err, purchase.ErrCeilingReached) {
		return 0, ErrLimitReached
	}
	return n, err
}
