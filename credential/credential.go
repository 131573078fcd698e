// Package credential hashes and verifies user passwords.
//
// Argon2id is the default scheme. Bcrypt hashes are still verified so
// accounts imported from older systems keep working; Auto picks the
// right verifier from the hash prefix.
package credential

import "errors"

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("credential: password is empty")
	// ErrUnknownHash is returned for a hash no verifier recognizes.
	ErrUnknownHash = errors.New("credential: unrecognized hash format")
)

// Hasher produces a storable hash for a password.
type Hasher interface {
	Hash(password string) (string, error)
}

// Verifier checks a password against a stored hash. A mismatch is
// (false, nil); an error means the hash could not be evaluated.
type Verifier interface {
	Verify(hash, password string) (bool, error)
}

// HashVerifier both hashes and verifies.
type HashVerifier interface {
	Hasher
	Verifier
}
