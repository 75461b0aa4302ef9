package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// mapKeyProvider resolves signing keys from an in-memory hash table, standing
// in for the user repository.
type mapKeyProvider struct {
	hashes map[string]string
	err    error
}

func (p *mapKeyProvider) SigningKey(_ context.Context, username string) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	h, ok := p.hashes[username]
	if !ok {
		return nil, NewError(KindNotFound, "error.userNotFound")
	}
	return []byte(h), nil
}

func newTokenServiceAt(provider SigningKeyProvider, at time.Time) *RecoveryTokenService {
	s := NewRecoveryTokenService(provider)
	s.now = func() time.Time { return at }
	return s
}

func TestRecoveryTokenRoundTrip(t *testing.T) {
	provider := &mapKeyProvider{hashes: map[string]string{"alice": "$2a$10$somebcrypthashvalue"}}
	svc := newTokenServiceAt(provider, time.Now())

	token, err := svc.Issue(&UserRecord{Username: "alice", PasswordHash: provider.hashes["alice"]})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	username, err := svc.ValidateAndExtractUsername(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateAndExtractUsername error: %v", err)
	}
	if username != "alice" {
		t.Fatalf("subject = %q, want alice", username)
	}
}

func TestRecoveryTokenInvalidatedByPasswordChange(t *testing.T) {
	provider := &mapKeyProvider{hashes: map[string]string{"alice": "hash-before"}}
	svc := newTokenServiceAt(provider, time.Now())

	token, err := svc.Issue(&UserRecord{Username: "alice", PasswordHash: "hash-before"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Password change: the stored hash (and thus the signing key) moves on.
	provider.hashes["alice"] = "hash-after"

	if _, err := svc.ValidateAndExtractUsername(context.Background(), token); !IsKind(err, KindInvalidToken) {
		t.Fatalf("token outlived password change: got %v, want invalid token", err)
	}
}

func TestRecoveryTokenExpires(t *testing.T) {
	provider := &mapKeyProvider{hashes: map[string]string{"alice": "stable-hash"}}
	issuedAt := time.Now()
	svc := newTokenServiceAt(provider, issuedAt)

	token, err := svc.Issue(&UserRecord{Username: "alice", PasswordHash: "stable-hash"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Just inside the window.
	svc.now = func() time.Time { return issuedAt.Add(3*time.Hour - time.Minute) }
	if _, err := svc.ValidateAndExtractUsername(context.Background(), token); err != nil {
		t.Fatalf("token rejected inside validity window: %v", err)
	}

	// Just past it.
	svc.now = func() time.Time { return issuedAt.Add(3*time.Hour + time.Second) }
	if _, err := svc.ValidateAndExtractUsername(context.Background(), token); !IsKind(err, KindInvalidToken) {
		t.Fatalf("expired token accepted: got %v, want invalid token", err)
	}
}

func TestRecoveryTokenSubjectTampering(t *testing.T) {
	provider := &mapKeyProvider{hashes: map[string]string{
		"alice":   "alice-hash",
		"mallory": "mallory-hash",
	}}
	svc := newTokenServiceAt(provider, time.Now())

	token, err := svc.Issue(&UserRecord{Username: "mallory", PasswordHash: "mallory-hash"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Rewrite the subject claim to alice, keeping mallory's signature.
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	claims["sub"] = "alice"
	forged, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal forged payload: %v", err)
	}
	parts[1] = base64.RawURLEncoding.EncodeToString(forged)
	tampered := strings.Join(parts, ".")

	if _, err := svc.ValidateAndExtractUsername(context.Background(), tampered); !IsKind(err, KindInvalidToken) {
		t.Fatalf("tampered subject accepted: got %v, want invalid token", err)
	}
}

func TestRecoveryTokenMalformed(t *testing.T) {
	provider := &mapKeyProvider{hashes: map[string]string{"alice": "alice-hash"}}
	svc := newTokenServiceAt(provider, time.Now())

	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := svc.ValidateAndExtractUsername(context.Background(), token); !IsKind(err, KindInvalidToken) {
			t.Fatalf("malformed token %q: got %v, want invalid token", token, err)
		}
	}
}

func TestRecoveryTokenUnknownSubject(t *testing.T) {
	issuer := newTokenServiceAt(&mapKeyProvider{hashes: map[string]string{"ghost": "ghost-hash"}}, time.Now())
	token, err := issuer.Issue(&UserRecord{Username: "ghost", PasswordHash: "ghost-hash"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Validate against a provider that no longer knows the subject.
	svc := newTokenServiceAt(&mapKeyProvider{hashes: map[string]string{}}, time.Now())
	if _, err := svc.ValidateAndExtractUsername(context.Background(), token); !IsKind(err, KindInvalidToken) {
		t.Fatalf("unknown subject: got %v, want invalid token", err)
	}
}

func TestRecoveryTokenProviderFailure(t *testing.T) {
	failing := &mapKeyProvider{err: errors.New("connection refused")}
	issuer := newTokenServiceAt(&mapKeyProvider{hashes: map[string]string{"alice": "alice-hash"}}, time.Now())
	token, err := issuer.Issue(&UserRecord{Username: "alice", PasswordHash: "alice-hash"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Repository faults during validation collapse to invalid token too.
	svc := newTokenServiceAt(failing, time.Now())
	if _, err := svc.ValidateAndExtractUsername(context.Background(), token); !IsKind(err, KindInvalidToken) {
		t.Fatalf("provider failure: got %v, want invalid token", err)
	}
}
