package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PoolOptions sizes the connection pool and the startup retry budget.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Attempts        int
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute, Attempts: 10}
}

// ConnectPostgres opens and pings the cart database, retrying with a linear
// backoff until ctx ends or the attempts run out, then migrates models.
// Driver errors are translated so unique violations surface as
// gorm.ErrDuplicatedKey.
func ConnectPostgres(ctx context.Context, dsn string, opts PoolOptions, logger *zap.Logger, models ...interface{}) (*gorm.DB, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		db, err := open(ctx, dsn, opts)
		if err == nil {
			logger.Info("Connected to PostgreSQL", zap.Int("attempt", attempt))
			if len(models) > 0 {
				if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
					return nil, fmt.Errorf("auto-migrate: %w", err)
				}
			}
			return db, nil
		}
		lastErr = err

		logger.Warn("PostgreSQL not reachable, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", opts.Attempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to PostgreSQL after %d attempts: %w", opts.Attempts, lastErr)
}

func open(ctx context.Context, dsn string, opts PoolOptions) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
