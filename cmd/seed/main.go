package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/relaycrm/api/internal/auth"
)

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	adminEmail := envOrDefault("SEED_ADMIN_EMAIL", "admin@relay.local")
	adminPassword := envOrDefault("SEED_ADMIN_PASSWORD", "Admin12345!")
	adminName := envOrDefault("SEED_ADMIN_NAME", "Local Admin")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO users (email, display_name, full_name, role, password_hash, is_active)
		VALUES ($1, $2, $3, 'admin', $4, TRUE)
		ON CONFLICT (email) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			full_name = EXCLUDED.full_name,
			password_hash = EXCLUDED.password_hash,
			is_active = TRUE
	`, adminEmail, adminName, adminName, passwordHash); err != nil {
		log.Fatalf("upsert admin user: %v", err)
	}

	extraUsers := []struct {
		email string
		name  string
		role  string
	}{
		{"sam@relay.local", "Sam Rivera", "manager"},
		{"lee@relay.local", "Lee Chen", "member"},
	}
	for _, u := range extraUsers {
		hash, err := auth.HashPassword(adminPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO users (email, display_name, full_name, role, password_hash, is_active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (email) DO NOTHING
		`, u.email, u.name, u.name, u.role, hash); err != nil {
			log.Fatalf("insert user %s: %v", u.email, err)
		}
	}

	fmt.Printf("seeded admin %s and %d demo users\n", adminEmail, len(extraUsers))
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
