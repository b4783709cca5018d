// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"commerce-auth/backend/internal/config"
	"commerce-auth/backend/internal/db"
	"commerce-auth/backend/internal/security"
	"commerce-auth/backend/internal/user/domain"
	userrepo "commerce-auth/backend/internal/user/repository"
)

const (
	devEmail      = "dev@example.com"
	devPassword   = "password123"
	adminEmail    = "admin@example.com"
	adminPassword = "password123"
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

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, devEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()

	// Both dev users are created pre-verified so login works immediately.
	dev := &domain.User{Email: devEmail, PasswordHash: passwordHash, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := users.Create(ctx, dev); err != nil {
		log.Fatalf("create dev user: %v", err)
	}
	if err := users.AssignRole(ctx, dev.ID, "CUSTOMER"); err != nil {
		log.Fatalf("assign dev role: %v", err)
	}

	admin := &domain.User{Email: adminEmail, PasswordHash: passwordHash, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatalf("create admin user: %v", err)
	}
	for _, role := range []string{"CUSTOMER", "ADMIN"} {
		if err := users.AssignRole(ctx, admin.ID, role); err != nil {
			log.Fatalf("assign admin role %s: %v", role, err)
		}
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devEmail, devPassword)
	fmt.Printf("Admin login: %s / %s\n", adminEmail, adminPassword)
}
