package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-shop-api/internal/application/session"
	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/infrastructure/awscfg"
	"github.com/go-shop-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/infrastructure/postgres"
	redisinfra "github.com/go-shop-api/internal/infrastructure/redis"
	s3infra "github.com/go-shop-api/internal/infrastructure/s3"
	"github.com/go-shop-api/internal/infrastructure/smtp"
	"github.com/go-shop-api/internal/pkg/otp"
	"github.com/go-shop-api/internal/pkg/password"
	transporthttp "github.com/go-shop-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}
	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))

	if err := run(cfg); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	tokens, err := jwtinfra.NewProvider(jwtinfra.Options{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	hasher := password.NewHasher(cfg.BcryptCost, cfg.HashConcurrency)
	timingHash, err := hasher.Hash(ctx, "timing-equalizer")
	if err != nil {
		return err
	}

	awsCfg, err := awscfg.Load(ctx, cfg)
	if err != nil {
		return err
	}

	revocations, closeRevocations, err := newRevocationStore(ctx, cfg, awsCfg)
	if err != nil {
		return err
	}
	defer closeRevocations()

	s3Store := s3infra.NewStore(s3infra.NewClient(awsCfg, cfg), cfg.S3BucketName, cfg.AWSRegion, cfg.S3PublicBaseURL)

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		DB:          db,
		Accounts:    postgres.NewAccountRepo(db),
		Hasher:      hasher,
		OTP:         otp.NewGenerator(cfg.OTPLength),
		Tokens:      tokens,
		Revocations: revocations,
		Objects:     s3Store,
		Mailer:      smtp.NewMailer(cfg),
		TimingHash:  timingHash,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "prefix", cfg.APIPrefix,
			"revocation_store", cfg.RevocationStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// newRevocationStore returns nil for REVOCATION_STORE=none, which leaves
// refresh tokens valid until they expire.
func newRevocationStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (session.RevocationStore, func(), error) {
	switch cfg.RevocationStore {
	case "redis":
		client, err := redisinfra.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return redisinfra.NewRevocationStore(client), func() { _ = client.Close() }, nil
	case "dynamo":
		client := dynamo.NewClient(awsCfg, cfg)
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewRevocationRepo(client, cfg.DynamoTables.RevokedTokens), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}
