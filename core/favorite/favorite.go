// Package favorite keeps the products a user bookmarked.
package favorite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/jmoiron/sqlx"
)

var ErrProductNotFound = errors.New("product not found")

type Favorite struct {
	UserID    string    `json:"-" db:"user_id"`
	ProductID string    `json:"productId" db:"product_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type FavoriteNew struct {
	ProductID string `json:"productId" validate:"required,uuid"`
}

func Add(ctx context.Context, db sqlx.ExtContext, f Favorite) error {
	const q = `
	INSERT INTO favorites (user_id, product_id, created_at)
	VALUES (:user_id, :product_id, :created_at)
	ON CONFLICT (user_id, product_id) DO NOTHING`

	if err := database.NamedExecContext(ctx, db, q, f); err != nil {
		if errors.Is(err, database.ErrDBReferenced) {
			return fmt.Errorf("%w: %s", ErrProductNotFound, f.ProductID)
		}
		return fmt.Errorf("inserting favorite: %w", err)
	}
	return nil
}

// Remove reports whether there was a favorite to remove.
func Remove(ctx context.Context, db sqlx.ExtContext, userID, productID string) (bool, error) {
	in := Favorite{UserID: userID, ProductID: productID}

	const q = `DELETE FROM favorites WHERE user_id = :user_id AND product_id = :product_id`

	n, err := database.NamedExecRows(ctx, db, q, in)
	if err != nil {
		return false, fmt.Errorf("deleting favorite: %w", err)
	}
	return n > 0, nil
}

// Toggle removes the favorite when present and adds it otherwise. It returns
// whether the product is now a favorite.
func Toggle(ctx context.Context, db *sqlx.DB, userID, productID string, now time.Time) (bool, error) {
	var favored bool
	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		removed, err := Remove(ctx, tx, userID, productID)
		if err != nil {
			return err
		}
		if removed {
			return nil
		}
		favored = true
		return Add(ctx, tx, Favorite{UserID: userID, ProductID: productID, CreatedAt: now})
	})
	return favored, err
}

func FetchAll(ctx context.Context, db sqlx.ExtContext, userID string) ([]Favorite, error) {
	in := struct {
		UserID string `db:"user_id"`
	}{userID}

	const q = `
	SELECT user_id, product_id, created_at FROM favorites
	WHERE user_id = :user_id
	ORDER BY created_at DESC`

	var fs []Favorite
	if err := database.NamedQuerySlice(ctx, db, q, in, &fs); err != nil {
		return nil, fmt.Errorf("selecting favorites of user[%s]: %w", userID, err)
	}
	return fs, nil
}

// Products loads the favorite products that are still on sale.
func Products(ctx context.Context, db sqlx.ExtContext, userID string) ([]product.Product, error) {
	fs, err := FetchAll(ctx, db, userID)
	if err != nil {
		return nil, err
	}

	ps := make([]product.Product, 0, len(fs))
	for _, f := range fs {
		p, err := product.Fetch(ctx, db, f.ProductID)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				continue
			}
			return nil, err
		}
		if p.Active {
			ps = append(ps, p)
		}
	}
	return ps, nil
}
