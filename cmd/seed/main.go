// seed provisions an operator account out-of-band. There is no self-registration endpoint.
//
//	go run ./cmd/seed -email ops@example.com -name "On-call" -secret-env OPSGATE_SEED_SECRET
//
// Idempotent: an existing account with the same email is left untouched.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"opsgate/internal/config"
	"opsgate/internal/credential"
	"opsgate/internal/db"
	"opsgate/internal/operator/repository"
	"opsgate/internal/security"
)

func main() {
	email := flag.String("email", "", "Operator email (required)")
	name := flag.String("name", "", "Display name")
	secretEnv := flag.String("secret-env", "OPSGATE_SEED_SECRET", "Environment variable holding the initial password")
	flag.Parse()

	if *email == "" {
		log.Fatal("seed: -email is required")
	}
	secret := os.Getenv(*secretEnv)
	if secret == "" {
		log.Fatalf("seed: %s is not set", *secretEnv)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or export DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	store := credential.NewStore(
		repository.NewPostgresRepository(conn, cfg.QueryTimeout()),
		security.NewHasher(cfg.BcryptCost),
		security.DefaultSecretPolicy(),
	)
	op, err := store.Provision(ctx, *email, *name, secret)
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		log.Printf("seed: %s already exists, skipping", *email)
		return
	case errors.Is(err, security.ErrWeakSecret):
		log.Fatalf("seed: %v", err)
	case err != nil:
		log.Fatalf("seed: provision: %v", err)
	}
	log.Printf("seed: provisioned operator %s (%s)", op.Email, op.ID)
}
