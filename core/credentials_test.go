package core

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidatePolicy(t *testing.T) {
	creds := NewCredentialManager(bcrypt.MinCost)

	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid minimum", "ab123456", true},
		{"valid mixed case", "Passw0rd1", true},
		{"all digits", "12345678", true},
		{"too short", "ab12345", false},
		{"no digits", "abcdefgh", false},
		{"one digit", "abcdefg1", false},
		{"symbol rejected", "ab12345!", false},
		{"space rejected", "ab 12345", false},
		{"too long", "a1b2" + repeatChar('x', 69), false},
		{"exactly 72", repeatChar('a', 70) + "12", true},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := creds.ValidatePolicy(tc.password)
			if tc.ok && err != nil {
				t.Fatalf("ValidatePolicy(%q) = %v, want nil", tc.password, err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("ValidatePolicy(%q) = nil, want validation error", tc.password)
				}
				if !IsKind(err, KindValidation) {
					t.Fatalf("ValidatePolicy(%q) kind = %s, want %s", tc.password, KindOf(err), KindValidation)
				}
			}
		})
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	creds := NewCredentialManager(bcrypt.MinCost)

	hash, err := creds.Hash("ab123456")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !creds.Verify("ab123456", hash) {
		t.Fatal("Verify rejected the original password")
	}
	if creds.Verify("ab123457", hash) {
		t.Fatal("Verify accepted a different password")
	}
}

func TestHashSaltsEachCall(t *testing.T) {
	creds := NewCredentialManager(bcrypt.MinCost)

	h1, err := creds.Hash("ab123456")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	h2, err := creds.Hash("ab123456")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password are identical; salt is not fresh")
	}
	if !creds.Verify("ab123456", h1) || !creds.Verify("ab123456", h2) {
		t.Fatal("both hashes must verify against the original password")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	creds := NewCredentialManager(bcrypt.MinCost)

	for _, hash := range []string{"", "not-a-bcrypt-hash", "$2a$"} {
		if creds.Verify("ab123456", hash) {
			t.Fatalf("Verify accepted malformed hash %q", hash)
		}
	}
}

func TestNewCredentialManagerCostFallback(t *testing.T) {
	for _, cost := range []int{-1, 0, bcrypt.MaxCost + 1} {
		m := NewCredentialManager(cost)
		if m.cost != bcrypt.DefaultCost {
			t.Fatalf("cost %d: got %d, want default %d", cost, m.cost, bcrypt.DefaultCost)
		}
	}
	if m := NewCredentialManager(bcrypt.MinCost); m.cost != bcrypt.MinCost {
		t.Fatalf("in-range cost overridden: got %d", m.cost)
	}
}

func repeatChar(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
