package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/irsalhamdi/e-commerce-media/database"
	"github.com/jmoiron/sqlx"
)

const columns = `user_id, name, email, role, password_hash, created_at, updated_at`

func Create(ctx context.Context, db sqlx.ExtContext, u User) error {
	const q = `
	INSERT INTO users (` + columns + `)
	VALUES (:user_id, :name, :email, :role, :password_hash, :created_at, :updated_at)`

	if err := database.NamedExecContext(ctx, db, q, u); err != nil {
		if errors.Is(err, database.ErrDBDuplicatedEntry) {
			return ErrUniqueEmail
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (User, error) {
	in := struct {
		ID string `db:"user_id"`
	}{id}

	const q = `SELECT ` + columns + ` FROM users WHERE user_id = :user_id`

	var u User
	if err := database.NamedQueryStruct(ctx, db, q, in, &u); err != nil {
		return User{}, fmt.Errorf("selecting user[%s]: %w", id, err)
	}
	return u, nil
}

func FetchByEmail(ctx context.Context, db sqlx.ExtContext, email string) (User, error) {
	in := struct {
		Email string `db:"email"`
	}{email}

	const q = `SELECT ` + columns + ` FROM users WHERE email = :email`

	var u User
	if err := database.NamedQueryStruct(ctx, db, q, in, &u); err != nil {
		return User{}, fmt.Errorf("selecting user by email: %w", err)
	}
	return u, nil
}

// SetRole is used by operators to grant or revoke admin rights.
func SetRole(ctx context.Context, db sqlx.ExtContext, id, role string) error {
	in := struct {
		ID   string `db:"user_id"`
		Role string `db:"role"`
	}{id, role}

	const q = `UPDATE users SET role = :role WHERE user_id = :user_id`

	n, err := database.NamedExecRows(ctx, db, q, in)
	if err != nil {
		return fmt.Errorf("updating role of user[%s]: %w", id, err)
	}
	if n == 0 {
		return database.ErrDBNotFound
	}
	return nil
}
