package credential

import "strings"

// Auto hashes with argon2id and verifies argon2id or bcrypt hashes,
// chosen by prefix.
type Auto struct {
	Argon2 *Argon2id
	Bcrypt *Bcrypt
}

// NewAuto returns an Auto with default parameters.
func NewAuto() *Auto {
	return &Auto{Argon2: DefaultArgon2id(), Bcrypt: DefaultBcrypt()}
}

// Hash returns an argon2id hash of password.
func (a *Auto) Hash(password string) (string, error) {
	return a.Argon2.Hash(password)
}

// Verify dispatches on the hash prefix.
func (a *Auto) Verify(hash, password string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, argon2Prefix):
		return a.Argon2.Verify(hash, password)
	case isBcrypt(hash):
		return a.Bcrypt.Verify(hash, password)
	default:
		return false, ErrUnknownHash
	}
}
