package core

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// recoveryTokenTTL is the fixed account-recovery window.
const recoveryTokenTTL = 3 * time.Hour

// SigningKeyProvider resolves the HMAC key for a recovery token subject. The
// key is the subject's current password hash, so changing the password
// invalidates every outstanding token without a revocation list. That
// coupling is the point of the design; do not separate the key material from
// the stored hash.
type SigningKeyProvider interface {
	SigningKey(ctx context.Context, username string) ([]byte, error)
}

// RepositorySigningKeyProvider derives signing keys from the password hash
// stored in the user repository.
type RepositorySigningKeyProvider struct {
	users UserRepository
}

func NewRepositorySigningKeyProvider(users UserRepository) *RepositorySigningKeyProvider {
	return &RepositorySigningKeyProvider{users: users}
}

func (p *RepositorySigningKeyProvider) SigningKey(ctx context.Context, username string) ([]byte, error) {
	u, err := p.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewError(KindNotFound, "error.userNotFound")
	}
	return []byte(u.PasswordHash), nil
}

// RecoveryTokenService issues and validates self-invalidating recovery
// tokens. Tokens are compact HS256 JWTs carrying only subject and expiry;
// no server-side state is recorded for them.
type RecoveryTokenService struct {
	keys SigningKeyProvider
	now  func() time.Time
}

func NewRecoveryTokenService(keys SigningKeyProvider) *RecoveryTokenService {
	return &RecoveryTokenService{keys: keys, now: time.Now}
}

// Issue builds a recovery token for the user, signed with the user's current
// password hash. Signing failures are hard failures: the caller must not
// pretend a token was produced.
func (s *RecoveryTokenService) Issue(user *UserRecord) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   user.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(recoveryTokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(user.PasswordHash))
	if err != nil {
		return "", WrapError(KindDependency, "error.internal", err)
	}
	return token, nil
}

// ValidateAndExtractUsername parses and verifies a recovery token and returns
// its subject. The signing key is resolved from the unverified subject claim,
// so the signature check always runs against the account's current hash.
// Every failure mode (malformed token, unknown subject, signature mismatch,
// expiry, repository fault) collapses to the same invalid-token outcome;
// callers cannot distinguish forged from expired.
func (s *RecoveryTokenService) ValidateAndExtractUsername(ctx context.Context, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			subject, err := t.Claims.GetSubject()
			if err != nil || subject == "" {
				return nil, jwt.ErrTokenRequiredClaimMissing
			}
			return s.keys.SigningKey(ctx, subject)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", WrapError(KindInvalidToken, "error.invalidLink", err)
	}
	return claims.Subject, nil
}
