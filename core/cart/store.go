package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/product"
	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/irsalhamdi/e-commerce-media/validate"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type userIn struct {
	UserID string `db:"user_id"`
}

func FetchItems(ctx context.Context, db sqlx.ExtContext, userID string) ([]Item, error) {
	const q = `
	SELECT cart_item_id, user_id, product_id, format, created_at
	FROM cart_items
	WHERE user_id = :user_id
	ORDER BY created_at`

	var items []Item
	if err := database.NamedQuerySlice(ctx, db, q, userIn{userID}, &items); err != nil {
		return nil, fmt.Errorf("selecting cart items of user[%s]: %w", userID, err)
	}
	return items, nil
}

// FetchSelected returns the items among ids that belong to the user. An
// empty ids selects the whole cart.
func FetchSelected(ctx context.Context, db sqlx.ExtContext, userID string, ids []string) ([]Item, error) {
	if len(ids) == 0 {
		return FetchItems(ctx, db, userID)
	}

	in := struct {
		UserID string         `db:"user_id"`
		IDs    pq.StringArray `db:"ids"`
	}{userID, ids}

	const q = `
	SELECT cart_item_id, user_id, product_id, format, created_at
	FROM cart_items
	WHERE user_id = :user_id AND cart_item_id = ANY(CAST(:ids AS UUID[]))
	ORDER BY created_at`

	var items []Item
	if err := database.NamedQuerySlice(ctx, db, q, in, &items); err != nil {
		return nil, fmt.Errorf("selecting cart items of user[%s]: %w", userID, err)
	}
	return items, nil
}

func Create(ctx context.Context, db sqlx.ExtContext, it Item) error {
	const q = `
	INSERT INTO cart_items (cart_item_id, user_id, product_id, format, created_at)
	VALUES (:cart_item_id, :user_id, :product_id, :format, :created_at)`

	if err := database.NamedExecContext(ctx, db, q, it); err != nil {
		return fmt.Errorf("inserting cart item: %w", err)
	}
	return nil
}

// Remove deletes one item of the user. Another user's item is reported as
// missing.
func Remove(ctx context.Context, db sqlx.ExtContext, userID, itemID string) error {
	in := struct {
		UserID string `db:"user_id"`
		ID     string `db:"cart_item_id"`
	}{userID, itemID}

	const q = `DELETE FROM cart_items WHERE user_id = :user_id AND cart_item_id = :cart_item_id`

	n, err := database.NamedExecRows(ctx, db, q, in)
	if err != nil {
		return fmt.Errorf("deleting cart item[%s]: %w", itemID, err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func Clear(ctx context.Context, db sqlx.ExtContext, userID string) error {
	const q = `DELETE FROM cart_items WHERE user_id = :user_id`

	if err := database.NamedExecContext(ctx, db, q, userIn{userID}); err != nil {
		return fmt.Errorf("clearing cart of user[%s]: %w", userID, err)
	}
	return nil
}

// DeleteItems removes the given items of the user and returns how many went.
func DeleteItems(ctx context.Context, db sqlx.ExtContext, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	in := struct {
		UserID string         `db:"user_id"`
		IDs    pq.StringArray `db:"ids"`
	}{userID, ids}

	const q = `DELETE FROM cart_items WHERE user_id = :user_id AND cart_item_id = ANY(CAST(:ids AS UUID[]))`

	n, err := database.NamedExecRows(ctx, db, q, in)
	if err != nil {
		return 0, fmt.Errorf("deleting cart items of user[%s]: %w", userID, err)
	}
	return n, nil
}

func Count(ctx context.Context, db sqlx.ExtContext, userID string) (int, error) {
	const q = `SELECT COUNT(*) AS count FROM cart_items WHERE user_id = :user_id`

	var out struct {
		Count int `db:"count"`
	}
	if err := database.NamedQueryStruct(ctx, db, q, userIn{userID}, &out); err != nil {
		return 0, fmt.Errorf("counting cart items of user[%s]: %w", userID, err)
	}
	return out.Count, nil
}

// Get returns the user's cart priced at instant now.
func Get(ctx context.Context, db sqlx.ExtContext, userID string, now time.Time) (Cart, error) {
	items, err := FetchItems(ctx, db, userID)
	if err != nil {
		return Cart{}, err
	}

	products, err := Products(ctx, db, items)
	if err != nil {
		return Cart{}, err
	}

	return Price(items, products, now), nil
}

// Products loads the products referenced by items keyed by id.
func Products(ctx context.Context, db sqlx.ExtContext, items []Item) (map[string]product.Product, error) {
	products := make(map[string]product.Product, len(items))
	for _, it := range items {
		if _, ok := products[it.ProductID]; ok {
			continue
		}

		p, err := product.Fetch(ctx, db, it.ProductID)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				continue
			}
			return nil, fmt.Errorf("fetching product[%s]: %w", it.ProductID, err)
		}
		products[p.ID] = p
	}
	return products, nil
}

// Add puts one format of an active product in the user's cart.
func Add(ctx context.Context, db sqlx.ExtContext, userID string, in ItemNew, now time.Time) (Item, error) {
	p, err := product.Fetch(ctx, db, in.ProductID)
	if err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Item{}, ErrProductUnavailable
		}
		return Item{}, err
	}
	if !p.Active {
		return Item{}, ErrProductUnavailable
	}
	if !p.Types.Offers(in.Format) {
		return Item{}, ErrFormatUnavailable
	}

	it := Item{
		ID:        validate.GenerateID(),
		UserID:    userID,
		ProductID: p.ID,
		Format:    in.Format,
		CreatedAt: now,
	}

	if err := Create(ctx, db, it); err != nil {
		if errors.Is(err, database.ErrDBDuplicatedEntry) {
			return Item{}, ErrDuplicateItem
		}
		return Item{}, err
	}
	return it, nil
}
