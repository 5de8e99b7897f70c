package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const columns = `purchase_id, user_id, product_id, format, amount, currency,
	payment_ref, provider, payment_status, download_count, expires_at,
	download_token, created_at, updated_at`

func Create(ctx context.Context, db sqlx.ExtContext, p Purchase) error {
	const q = `
	INSERT INTO purchases (` + columns + `)
	VALUES (:purchase_id, :user_id, :product_id, :format, :amount, :currency,
		:payment_ref, :provider, :payment_status, :download_count, :expires_at,
		:download_token, :created_at, :updated_at)`

	if err := database.NamedExecContext(ctx, db, q, p); err != nil {
		if errors.Is(err, database.ErrDBDuplicatedEntry) {
			return fmt.Errorf("inserting purchase with reference[%s]: %w", p.PaymentRef, ErrDuplicateReference)
		}
		return fmt.Errorf("inserting purchase: %w", err)
	}
	return nil
}

func CreateMany(ctx context.Context, db sqlx.ExtContext, ps []Purchase) error {
	for _, p := range ps {
		if err := Create(ctx, db, p); err != nil {
			return err
		}
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Purchase, error) {
	in := struct {
		ID string `db:"purchase_id"`
	}{id}

	const q = `SELECT ` + columns + ` FROM purchases WHERE purchase_id = :purchase_id`

	var p Purchase
	if err := database.NamedQueryStruct(ctx, db, q, in, &p); err != nil {
		return Purchase{}, fmt.Errorf("selecting purchase[%s]: %w", id, err)
	}
	return p, nil
}

// FetchByReference returns the user's purchases bound to a payment reference.
func FetchByReference(ctx context.Context, db sqlx.ExtContext, ref, userID string) ([]Purchase, error) {
	in := struct {
		Ref    string `db:"payment_ref"`
		UserID string `db:"user_id"`
	}{ref, userID}

	const q = `
	SELECT ` + columns + ` FROM purchases
	WHERE payment_ref = :payment_ref AND user_id = :user_id
	ORDER BY created_at, purchase_id`

	var ps []Purchase
	if err := database.NamedQuerySlice(ctx, db, q, in, &ps); err != nil {
		return nil, fmt.Errorf("selecting purchases by reference[%s]: %w", ref, err)
	}
	return ps, nil
}

// Complete flips the user's PENDING purchases under ref to COMPLETED and
// returns how many changed. Completed rows are left alone.
func Complete(ctx context.Context, db sqlx.ExtContext, ref, userID string, now time.Time) (int64, error) {
	in := struct {
		Ref       string    `db:"payment_ref"`
		UserID    string    `db:"user_id"`
		UpdatedAt time.Time `db:"updated_at"`
	}{ref, userID, now}

	const q = `
	UPDATE purchases SET payment_status = 'COMPLETED', updated_at = :updated_at
	WHERE payment_ref = :payment_ref AND user_id = :user_id AND payment_status = 'PENDING'`

	n, err := database.NamedExecRows(ctx, db, q, in)
	if err != nil {
		return 0, fmt.Errorf("completing purchases with reference[%s]: %w", ref, err)
	}
	return n, nil
}

// CompleteReferences force-completes every PENDING purchase under refs.
func CompleteReferences(ctx context.Context, db sqlx.ExtContext, refs []string, now time.Time) (int64, error) {
	in := struct {
		Refs      pq.StringArray `db:"refs"`
		UpdatedAt time.Time      `db:"updated_at"`
	}{refs, now}

	const q = `
	UPDATE purchases SET payment_status = 'COMPLETED', updated_at = :updated_at
	WHERE payment_ref = ANY(CAST(:refs AS TEXT[])) AND payment_status = 'PENDING'`

	n, err := database.NamedExecRows(ctx, db, q, in)
	if err != nil {
		return 0, fmt.Errorf("completing purchases by reference: %w", err)
	}
	return n, nil
}

// FetchCompleted lists the user's completed purchases, newest first.
func FetchCompleted(ctx context.Context, db sqlx.ExtContext, userID string) ([]Purchase, error) {
	in := struct {
		UserID string `db:"user_id"`
	}{userID}

	const q = `
	SELECT ` + columns + ` FROM purchases
	WHERE user_id = :user_id AND payment_status = 'COMPLETED'
	ORDER BY created_at DESC`

	var ps []Purchase
	if err := database.NamedQuerySlice(ctx, db, q, in, &ps); err != nil {
		return nil, fmt.Errorf("selecting completed purchases of user[%s]: %w", userID, err)
	}
	return ps, nil
}

// LastDownloads maps each of the user's purchases that was ever delivered to
// the time of its latest delivery.
func LastDownloads(ctx context.Context, db sqlx.ExtContext, userID string) (map[string]time.Time, error) {
	in := struct {
		UserID string `db:"user_id"`
	}{userID}

	const q = `
	SELECT d.purchase_id, MAX(d.downloaded_at) AS downloaded_at
	FROM downloads d JOIN purchases p ON p.purchase_id = d.purchase_id
	WHERE p.user_id = :user_id
	GROUP BY d.purchase_id`

	var rows []struct {
		PurchaseID   string    `db:"purchase_id"`
		DownloadedAt time.Time `db:"downloaded_at"`
	}
	if err := database.NamedQuerySlice(ctx, db, q, in, &rows); err != nil {
		return nil, fmt.Errorf("selecting last downloads of user[%s]: %w", userID, err)
	}

	last := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		last[r.PurchaseID] = r.DownloadedAt
	}
	return last, nil
}

// RecordDelivery counts one delivery and writes its audit row in a single
// transaction. The increment only applies while the count is below ceiling;
// otherwise nothing is written and ErrCeilingReached is returned.
func RecordDelivery(ctx context.Context, db *sqlx.DB, ceiling int, d Download) (int, error) {
	var count int

	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		in := struct {
			ID        string    `db:"purchase_id"`
			Ceiling   int       `db:"ceiling"`
			UpdatedAt time.Time `db:"updated_at"`
		}{d.PurchaseID, ceiling, d.DownloadedAt}

		const inc = `
		UPDATE purchases SET download_count = download_count + 1, updated_at = :updated_at
		WHERE purchase_id = :purchase_id AND download_count < :ceiling
		RETURNING download_count`

		var out struct {
			Count int `db:"download_count"`
		}
		if err := database.NamedQueryStruct(ctx, tx, inc, in, &out); err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return ErrCeilingReached
			}
			return fmt.Errorf("incrementing download count: %w", err)
		}
		count = out.Count

		const audit = `
		INSERT INTO downloads (download_id, purchase_id, ip_address, user_agent, downloaded_at)
		VALUES (:download_id, :purchase_id, :ip_address, :user_agent, :downloaded_at)`

		if err := database.NamedExecContext(ctx, tx, audit, d); err != nil {
			return fmt.Errorf("inserting download: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recording delivery of purchase[%s]: %w", d.PurchaseID, err)
	}
	return count, nil
}

func FetchDownloads(ctx context.Context, db sqlx.ExtContext, purchaseID string) ([]Download, error) {
	in := struct {
		ID string `db:"purchase_id"`
	}{purchaseID}

	const q = `
	SELECT download_id, purchase_id, ip_address, user_agent, downloaded_at
	FROM downloads WHERE purchase_id = :purchase_id
	ORDER BY downloaded_at`

	var ds []Download
	if err := database.NamedQuerySlice(ctx, db, q, in, &ds); err != nil {
		return nil, fmt.Errorf("selecting downloads of purchase[%s]: %w", purchaseID, err)
	}
	return ds, nil
}
