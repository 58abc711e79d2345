// Package database bootstraps the two database handles this service uses:
// a bun connection for schema bootstrap/DDL (connection-pooling and
// debug-hook wrapped the same way), and a raw lib/pq *sql.DB for the
// ingestor and checkpoint store, which need pq.CopyIn for bulk COPY FROM
// STDIN, a capability bun's own driver does not expose.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	_ "github.com/lib/pq"

	"github.com/vision-digital/cnpj-ingestd/internal/config"
	"github.com/vision-digital/cnpj-ingestd/internal/logger"
)

// ConnectBun opens a bun-managed connection used for schema bootstrap and
// DDL. verbose enables the bundebug query-logging hook.
func ConnectBun(cfg *config.Config, verbose bool) (*bun.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host,
		cfg.Database.Port, cfg.Database.Database)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(5)
	sqldb.SetMaxIdleConns(2)
	sqldb.SetConnMaxLifetime(5 * time.Minute)

	db := bun.NewDB(sqldb, pgdialect.New())
	if verbose {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	logger.Println("bun connection established")
	return db, nil
}

// ConnectSQL opens a raw database/sql handle over lib/pq, used by the
// ingestor and checkpoint store for COPY FROM STDIN and checkpoint queries.
func ConnectSQL(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	logger.Println("sql connection established")
	return db, nil
}

// WaitForDatabase polls ConnectSQL until it succeeds or attempts are
// exhausted, per the schema bootstrap's readiness wait (up to 20 attempts,
// 3s apart).
func WaitForDatabase(cfg *config.Config, attempts int, interval time.Duration) (*sql.DB, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := ConnectSQL(cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err
		logger.Logger.Warn().Int("attempt", i+1).Int("max_attempts", attempts).Msg("database not ready, retrying")
		time.Sleep(interval)
	}
	return nil, fmt.Errorf("database not ready after %d attempts: %v", attempts, lastErr)
}
