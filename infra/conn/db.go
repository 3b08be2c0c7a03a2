package conn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mstgnz/monopay/infra/logger"
)

const (
	connectAttempts = 5
	retryDelay      = 2 * time.Second
)

// DB wraps the PostgreSQL connection pool of the host record store
type DB struct {
	*sql.DB
}

// ConnectDatabase opens a pool for dsn and waits until it answers a ping
func ConnectDatabase(ctx context.Context, dsn string) (*DB, error) {
	var lastErr error

	for attempts := 1; attempts <= connectAttempts; attempts++ {
		database, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open DB connection: %w", err)
		}

		database.SetMaxOpenConns(25)
		database.SetMaxIdleConns(5)
		database.SetConnMaxLifetime(5 * time.Minute)
		database.SetConnMaxIdleTime(2 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = database.PingContext(pingCtx)
		cancel()

		if err == nil {
			logger.Info("DB connected successfully")
			return &DB{DB: database}, nil
		}

		lastErr = err
		_ = database.Close()
		logger.Warn("Failed to ping DB", logger.LogContext{
			Fields: map[string]any{"attempt": attempts, "error": err.Error()},
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", connectAttempts, lastErr)
}

// CloseDatabase closes the pool
func (db *DB) CloseDatabase() {
	if err := db.DB.Close(); err != nil {
		logger.Warn("Failed to close DB connection", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
		return
	}
	logger.Info("DB connection closed")
}
