package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/imrishuroy/go-storefront/internal/apperr"
)

// MaxPasswordBytes is the most bcrypt will hash. The limit is in bytes, so a
// password of multi-byte characters reaches it well before 72 characters.
const MaxPasswordBytes = 72

var ErrPasswordTooLong = apperr.Validation(
	fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes),
	map[string]string{"password": fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes)},
)

// HashPassword returns the bcrypt hash of password at the given cost.
func HashPassword(password string, cost int) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash. A password longer
// than bcrypt accepts can never have been hashed, so it never matches.
func CheckPassword(hash, password string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}
