package user

import (
	"errors"
	"time"

	"github.com/irsalhamdi/e-commerce-media/core/claims"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUniqueEmail        = errors.New("email is already in use")
	ErrInvalidCredentials = errors.New("email or password is not valid")
)

type User struct {
	ID           string    `json:"id" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Role         string    `json:"role" db:"role"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

type UserSignup struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"eqfield=Password"`
}

type UserLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (u User) Claims() claims.Claims {
	return claims.Claims{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}
}

func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// CheckPassword fails with ErrInvalidCredentials for accounts without a
// password, such as the ones created through an oauth login.
func (u User) CheckPassword(password string) error {
	if len(u.PasswordHash) == 0 {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
