package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/sessions"

	"soundrate/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.NewPgPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	catalog, err := core.LoadMessageCatalog(cfg.MessageCatalogPath)
	if err != nil {
		log.Fatalf("failed to load message catalog: %v", err)
	}

	// Gorilla cookie store for the session-id cookie; principals live in Redis.
	cookies := sessions.NewCookieStore([]byte(cfg.SessionKey))

	userRepo := core.NewPgUserRepository(db)
	libraryRepo := core.NewPgLibraryRepository(db)
	creds := core.NewCredentialManager(cfg.BcryptCost)
	authService := core.NewRepositoryAuthService(userRepo, creds)
	policy := core.NewPolicy(creds)
	tokens := core.NewRecoveryTokenService(core.NewRepositorySigningKeyProvider(userRepo))
	sessionStore := core.NewRedisSessionStore(redisClient, time.Duration(cfg.SessionTTLSeconds)*time.Second)
	mailer := core.NewSMTPMailer(cfg.SMTPAddr, cfg.MailFrom)
	metrics := core.NewMetrics()

	if err := core.BootstrapAdmin(ctx, userRepo, creds, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	router := core.NewRouter(cfg, core.Dependencies{
		Cookies:  cookies,
		Sessions: sessionStore,
		Users:    userRepo,
		Library:  libraryRepo,
		Auth:     authService,
		Creds:    creds,
		Tokens:   tokens,
		Policy:   policy,
		Mailer:   mailer,
		Catalog:  catalog,
		Metrics:  metrics,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
