package credential

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes passwords with bcrypt.
type Bcrypt struct {
	Cost int
}

// DefaultBcrypt returns a Bcrypt using bcrypt.DefaultCost.
func DefaultBcrypt() *Bcrypt { return &Bcrypt{Cost: bcrypt.DefaultCost} }

// Hash returns a bcrypt hash of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", fmt.Errorf("credential: bcrypt: %w", err)
	}
	return string(hash), nil
}

// Verify compares password with a bcrypt hash.
func (b *Bcrypt) Verify(hash, password string) (bool, error) {
	if !isBcrypt(hash) {
		return false, ErrUnknownHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("credential: bcrypt: %w", err)
	}
}

func isBcrypt(hash string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(hash, p) {
			return true
		}
	}
	return false
}
