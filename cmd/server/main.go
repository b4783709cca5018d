package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"commerce-auth/backend/internal/audit"
	auditrepo "commerce-auth/backend/internal/audit/repository"
	authservice "commerce-auth/backend/internal/auth/service"
	"commerce-auth/backend/internal/authcache"
	"commerce-auth/backend/internal/config"
	"commerce-auth/backend/internal/db"
	"commerce-auth/backend/internal/mail"
	"commerce-auth/backend/internal/redis"
	"commerce-auth/backend/internal/security"
	"commerce-auth/backend/internal/server"
	sessionrepo "commerce-auth/backend/internal/session/repository"
	userrepo "commerce-auth/backend/internal/user/repository"
	userservice "commerce-auth/backend/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	cache, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer cache.Close()

	var sender mail.Sender
	if cfg.SMTPHost != "" {
		sender, err = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
	} else {
		sender = mail.LogSender{}
	}

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	store := authcache.NewRedisStore(cache)
	mailer := mail.NewService(sender, cfg.BaseURL)
	hasher := security.NewHasher(cfg.BcryptCost)
	issuer := security.NewTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTTL())
	refreshHasher := security.NewRefreshHasher([]byte(cfg.RefreshHMACSecret))
	auditRepo := auditrepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(auditRepo)

	authSvc := authservice.New(
		users, sessions, sessions, store, mailer,
		hasher, issuer, refreshHasher, auditLogger,
		cfg.RefreshHorizon(), cfg.VerifyTTL(), cfg.ResetTTL(),
	)
	userSvc := userservice.New(users, store, mailer, hasher, cfg.VerifyTTL())

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(cfg.HTTPAddr, server.Deps{
		Auth:       authSvc,
		Users:      userSvc,
		Issuer:     issuer,
		Cache:      store,
		UserLookup: users,
		Audit:      auditRepo,
		DB:         conn,
	})

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
