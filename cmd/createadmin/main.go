// Command createadmin creates a privileged account directly in the database.
//
//	createadmin -username boss -email boss@example.com -password s3cret! -role admin
//
// Only staff, admin and super-admin can be created here; they are active
// immediately. Users and guests sign up through the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-shop-api/internal/application/auth"
	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/infrastructure/postgres"
	"github.com/go-shop-api/internal/pkg/password"
	"github.com/joho/godotenv"
)

func main() {
	username := flag.String("username", "", "account username")
	email := flag.String("email", "", "account email")
	pw := flag.String("password", "", "account password")
	roleName := flag.String("role", "admin", "staff | admin | super-admin (users and guests must register)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(cfg, *username, *email, *pw, *roleName); err != nil {
		slog.Error("create account failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, username, email, pw, roleName string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	role, err := domain.ParseRole(roleName)
	if err != nil {
		return err
	}
	if !role.PreActivated() {
		return fmt.Errorf("role %s cannot be created here: %w", role, domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	svc := auth.NewService(auth.ServiceDeps{
		Accounts: postgres.NewAccountRepo(db),
		Hasher:   password.NewHasher(cfg.BcryptCost, 1),
	})
	acc, err := svc.CreateAccount(ctx, auth.CreateAccountRequest{
		Username: username,
		Email:    email,
		Password: pw,
		Role:     role,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created account id=%d username=%s role=%s active=%t\n", acc.ID, acc.Username, acc.Role, acc.IsActive)
	return nil
}
