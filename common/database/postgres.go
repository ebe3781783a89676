package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"brokkoli/common/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	defaultConnectAttempts = 5
	pingTimeout            = 3 * time.Second
)

// NewPostgresDB opens the pool and waits for the server, retrying the ping
// with a doubling delay.
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ConfigurePool(db, cfg)

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = defaultConnectAttempts
	}
	if err := PingWithRetry(ctx, db, attempts, time.Second, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to postgres",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)
	return db, nil
}

// ConfigurePool applies the pool limits that are set in cfg
func ConfigurePool(db *sql.DB, cfg *config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// PingWithRetry pings up to attempts times, sleeping delay, 2*delay, ... in between
func PingWithRetry(ctx context.Context, db *sql.DB, attempts int, delay time.Duration, logger *zap.Logger) error {
	var err error
	for i := 1; i <= attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		logger.Warn("Database not ready, retrying",
			zap.Int("attempt", i),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", attempts, err)
}

// Close closes db when non-nil
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
