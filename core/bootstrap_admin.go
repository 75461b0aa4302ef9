package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"
)

// BootstrapAdmin creates an initial administrator when none exists.
// It is idempotent: if an administrator already exists, it does nothing.
func BootstrapAdmin(ctx context.Context, repo UserRepository, creds *CredentialManager, cfg Config) error {
	if !cfg.BootstrapAdminEnabled {
		return nil
	}

	has, err := repo.HasAdministrator(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	username := "admin"
	password, err := generatePassword(32)
	if err != nil {
		return err
	}

	hash, err := creds.Hash(password)
	if err != nil {
		return err
	}

	if err := repo.Create(ctx, UserRecord{
		Username:     username,
		Email:        cfg.BootstrapAdminEmail,
		PasswordHash: hash,
		Role:         RoleAdministrator,
	}); err != nil {
		return err
	}

	if cfg.InitialAdminPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Printf("initial administrator created; credentials written to %s", cfg.InitialAdminPasswordPath)
	} else {
		log.Printf("initial administrator created username=%s password=%s", username, password)
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
