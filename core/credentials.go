package core

import (
	"golang.org/x/crypto/bcrypt"
)

// CredentialManager hashes and verifies account passwords and enforces the
// password policy. Hashing is deliberately expensive; callers must not hold
// session or repository locks across Hash/Verify.
type CredentialManager struct {
	cost int
}

// NewCredentialManager returns a manager with the given bcrypt work factor.
// Out-of-range costs (including 0) fall back to the library default.
func NewCredentialManager(cost int) *CredentialManager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialManager{cost: cost}
}

// Hash produces a salted bcrypt hash of plaintext. bcrypt embeds a fresh
// random salt per call, so hashing the same password twice never yields the
// same output.
func (m *CredentialManager) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), m.cost)
	if err != nil {
		return "", WrapError(KindDependency, "error.internal", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. Malformed hashes verify as
// false rather than surfacing an error.
func (m *CredentialManager) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// ValidatePolicy enforces the account password policy: 8 to 72 characters,
// alphanumeric only, at least two digits. The 72 upper bound is also bcrypt's
// input limit. Equivalent to ^(?=(.*\d){2})[0-9a-zA-Z]{8,72}$, checked with a
// direct scan since RE2 has no lookahead.
func (m *CredentialManager) ValidatePolicy(plaintext string) error {
	if len(plaintext) < 8 || len(plaintext) > 72 {
		return NewError(KindValidation, "error.invalidPassword")
	}
	digits := 0
	for i := 0; i < len(plaintext); i++ {
		c := plaintext[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		default:
			return NewError(KindValidation, "error.invalidPassword")
		}
	}
	if digits < 2 {
		return NewError(KindValidation, "error.invalidPassword")
	}
	return nil
}
