package core

import (
	"context"
	"strings"
)

// AuthService defines authentication behaviour.
type AuthService interface {
	// Authenticate verifies username/password and returns the principal to
	// bind to the session. Failures are indistinguishable to the caller.
	Authenticate(ctx context.Context, username, password string) (*Principal, error)
}

// RepositoryAuthService authenticates against the user repository using the
// credential manager. It never reports whether the username or the password
// was wrong.
type RepositoryAuthService struct {
	users UserRepository
	creds *CredentialManager
}

func NewRepositoryAuthService(users UserRepository, creds *CredentialManager) *RepositoryAuthService {
	return &RepositoryAuthService{users: users, creds: creds}
}

func (s *RepositoryAuthService) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, NewError(KindUnauthorized, "error.invalidCredentials")
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !s.creds.Verify(password, u.PasswordHash) {
		return nil, NewError(KindUnauthorized, "error.invalidCredentials")
	}
	return &Principal{Username: u.Username, Role: u.Role}, nil
}
