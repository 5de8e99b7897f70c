package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var (
	ErrDBNotFound        = errors.New("not found")
	ErrDBDuplicatedEntry = errors.New("duplicated entry")
	ErrDBReferenced      = errors.New("still referenced")
)

func Open(cfg config.DB) (*sqlx.DB, error) {
	sslMode := "require"
	if cfg.DisableTLS {
		sslMode = "disable"
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host,
		Path:     cfg.Name,
		RawQuery: q.Encode(),
	}

	db, err := sqlx.Open("postgres", u.String())
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	return db, nil
}

// StatusCheck returns nil if it can successfully talk to the database.
func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	var tmp bool
	return db.QueryRowContext(ctx, `SELECT true`).Scan(&tmp)
}

func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Transaction runs f inside a transaction, committing only if f returns nil.
func Transaction(db *sqlx.DB, f func(tx sqlx.ExtContext) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := f(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func NamedExecContext(ctx context.Context, db sqlx.ExtContext, query string, data any) error {
	if _, err := sqlx.NamedExecContext(ctx, db, query, data); err != nil {
		return translate(err)
	}
	return nil
}

// NamedExecRows is NamedExecContext returning the number of affected rows.
func NamedExecRows(ctx context.Context, db sqlx.ExtContext, query string, data any) (int64, error) {
	res, err := sqlx.NamedExecContext(ctx, db, query, data)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func NamedQueryStruct(ctx context.Context, db sqlx.ExtContext, query string, data any, dest any) error {
	rows, err := sqlx.NamedQueryContext(ctx, db, query, data)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return ErrDBNotFound
	}

	return rows.StructScan(dest)
}

func NamedQuerySlice[T any](ctx context.Context, db sqlx.ExtContext, query string, data any, dest *[]T) error {
	rows, err := sqlx.NamedQueryContext(ctx, db, query, data)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()

	var slice []T
	for rows.Next() {
		v := new(T)
		if err := rows.StructScan(v); err != nil {
			return err
		}
		slice = append(slice, *v)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	*dest = slice

	return nil
}

func translate(err error) error {
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		switch pqerr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", pqerr.Constraint, ErrDBDuplicatedEntry)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", pqerr.Constraint, ErrDBReferenced)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDBNotFound
	}
	return err
}
