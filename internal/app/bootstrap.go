// Package app wires configuration into running components for the CLI
// commands and the standalone worker binary.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/order/payhere"
)

const connectAttempts = 5

// OpenPostgres opens the pool and retries the first ping with exponential
// backoff while the database comes up.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("POSTGRES_DSN not set")
	}
	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	attempt := 0
	ping := func() error {
		attempt++
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", attempt, connectAttempts))
		return sqldb.PingContext(ctx)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newConnectBackoff(), connectAttempts-1), ctx)
	if err := backoff.RetryNotify(ping, policy, func(err error, wait time.Duration) {
		log.Warn("DATABASE", fmt.Sprintf("PostgreSQL not ready: %v (retrying in %s)", err, wait))
	}); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", attempt, err)
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func OpenRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, nil
}

// NewVerifier prefers the OIDC issuer and falls back to the shared HS256
// secret.
func NewVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.Verifier, error) {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, err
		}
		log.Info("AUTH", fmt.Sprintf("Verifying bearer tokens against %s", cfg.OIDCIssuer))
		return v, nil
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("one of OIDC_ISSUER or JWT_SECRET must be set")
	}
	log.Warn("AUTH", "OIDC_ISSUER not set, verifying HS256 tokens with JWT_SECRET")
	return auth.NewHMACVerifier(cfg.JWTSecret), nil
}

// NewSigner returns nil when PayHere credentials are absent, which disables
// online checkout.
func NewSigner(cfg config.PayHereConfig) *payhere.Signer {
	if !cfg.Enabled() {
		return nil
	}
	return payhere.NewSigner(payhere.Config{
		MerchantID:     cfg.MerchantID,
		MerchantSecret: cfg.MerchantSecret,
		Currency:       cfg.Currency,
		ReturnURL:      cfg.ReturnURL,
		CancelURL:      cfg.CancelURL,
		NotifyURL:      cfg.NotifyURL,
		Sandbox:        cfg.Sandbox,
	})
}

func newConnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 10 * time.Second
	return b
}
