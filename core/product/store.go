package product

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/jmoiron/sqlx"
)

const columns = `product_id, slug, title, author, description, types,
	pdf_price, audio_price, bundle_price, summary_price,
	is_free, free_until, discount_percent, discount_amount, discount_until,
	limited_offer, offer_text, storage_path,
	cover_key, document_key, audio_key, sample_key, summary_key,
	active, created_at, updated_at`

func Create(ctx context.Context, db sqlx.ExtContext, p Product) error {
	const q = `
	INSERT INTO products (` + columns + `)
	VALUES (:product_id, :slug, :title, :author, :description, :types,
		:pdf_price, :audio_price, :bundle_price, :summary_price,
		:is_free, :free_until, :discount_percent, :discount_amount, :discount_until,
		:limited_offer, :offer_text, :storage_path,
		:cover_key, :document_key, :audio_key, :sample_key, :summary_key,
		:active, :created_at, :updated_at)`

	if err := database.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("inserting product: %w", err)
	}
	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, p Product) error {
	const q = `
	UPDATE products SET
		title = :title,
		author = :author,
		description = :description,
		types = :types,
		pdf_price = :pdf_price,
		audio_price = :audio_price,
		bundle_price = :bundle_price,
		summary_price = :summary_price,
		is_free = :is_free,
		free_until = :free_until,
		discount_percent = :discount_percent,
		discount_amount = :discount_amount,
		discount_until = :discount_until,
		limited_offer = :limited_offer,
		offer_text = :offer_text,
		active = :active,
		updated_at = :updated_at
	WHERE product_id = :product_id`

	if err := database.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("updating product[%s]: %w", p.ID, err)
	}
	return nil
}

func Delete(ctx context.Context, db sqlx.ExtContext, id string) error {
	in := struct {
		ID string `db:"product_id"`
	}{id}

	const q = `DELETE FROM products WHERE product_id = :product_id`

	if err := database.NamedExecContext(ctx, db, q, in); err != nil {
		return fmt.Errorf("deleting product[%s]: %w", id, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Product, error) {
	in := struct {
		ID string `db:"product_id"`
	}{id}

	const q = `SELECT ` + columns + ` FROM products WHERE product_id = :product_id`

	var p Product
	if err := database.NamedQueryStruct(ctx, db, q, in, &p); err != nil {
		return Product{}, fmt.Errorf("selecting product[%s]: %w", id, err)
	}
	return p, nil
}

func FetchBySlug(ctx context.Context, db sqlx.ExtContext, slug string) (Product, error) {
	in := struct {
		Slug string `db:"slug"`
	}{slug}

	const q = `SELECT ` + columns + ` FROM products WHERE slug = :slug`

	var p Product
	if err := database.NamedQueryStruct(ctx, db, q, in, &p); err != nil {
		return Product{}, fmt.Errorf("selecting product by slug[%s]: %w", slug, err)
	}
	return p, nil
}

func List(ctx context.Context, db sqlx.ExtContext, f Filter) ([]Product, error) {
	in := struct {
		Query      string `db:"query"`
		Type       string `db:"type"`
		ActiveOnly bool   `db:"active_only"`
	}{
		Query:      f.Query,
		Type:       string(f.Type),
		ActiveOnly: f.ActiveOnly,
	}

	const q = `
	SELECT ` + columns + ` FROM products
	WHERE (CAST(:active_only AS BOOLEAN) = FALSE OR active)
		AND (CAST(:query AS TEXT) = ''
			OR title ILIKE '%' || CAST(:query AS TEXT) || '%'
			OR author ILIKE '%' || CAST(:query AS TEXT) || '%')
		AND (CAST(:type AS TEXT) = '' OR CAST(:type AS TEXT) = ANY(types))
	ORDER BY created_at DESC`

	var ps []Product
	if err := database.NamedQuerySlice(ctx, db, q, in, &ps); err != nil {
		return nil, fmt.Errorf("selecting products: %w", err)
	}
	return ps, nil
}

// Key names a storage key column that uploads back-fill.
type Key string

const (
	KeyCover    Key = "cover_key"
	KeyDocument Key = "document_key"
	KeyAudio    Key = "audio_key"
	KeySample   Key = "sample_key"
	KeySummary  Key = "summary_key"
)

// SetKey records where an uploaded object lives and, when given, adds a
// content type the upload makes available.
func SetKey(ctx context.Context, db sqlx.ExtContext, id string, col Key, key string, add ContentType) error {
	switch col {
	case KeyCover, KeyDocument, KeyAudio, KeySample, KeySummary:
	default:
		return fmt.Errorf("unknown key column %q", col)
	}

	p, err := Fetch(ctx, db, id)
	if err != nil {
		return err
	}
	types := p.Types
	if add != "" {
		types = types.With(add)
	}

	in := struct {
		ID        string    `db:"product_id"`
		Key       string    `db:"key"`
		Types     Types     `db:"types"`
		UpdatedAt time.Time `db:"updated_at"`
	}{id, key, types, time.Now().UTC()}

	q := `UPDATE products SET ` + string(col) + ` = :key, types = :types, updated_at = :updated_at WHERE product_id = :product_id`

	if err := database.NamedExecContext(ctx, db, q, in); err != nil {
		return fmt.Errorf("setting %s of product[%s]: %w", col, id, err)
	}
	return nil
}
