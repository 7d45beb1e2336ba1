package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
// Each migration has a version key and SQL to execute.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS app_user (
				id            UUID         PRIMARY KEY,
				email         VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				plan          VARCHAR(20)  NOT NULL DEFAULT 'FREE',
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_transfers",
		SQL: `
			CREATE TABLE IF NOT EXISTS transfer (
				id            UUID         PRIMARY KEY,
				slug          VARCHAR(64)  NOT NULL UNIQUE,
				owner_id      UUID         NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
				status        VARCHAR(16)  NOT NULL DEFAULT 'ACTIVE',
				expires_at    TIMESTAMPTZ  NOT NULL,
				total_bytes   BIGINT       NOT NULL,
				password_hash VARCHAR(255),
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_transfer_expires_at ON transfer(expires_at);
			CREATE INDEX IF NOT EXISTS idx_transfer_owner_created ON transfer(owner_id, created_at);
		`,
	},
	{
		Version: "000003_create_file_objects",
		SQL: `
			CREATE TABLE IF NOT EXISTS file_object (
				id           UUID          PRIMARY KEY,
				transfer_id  UUID          NOT NULL REFERENCES transfer(id) ON DELETE CASCADE,
				storage_key  VARCHAR(1024) NOT NULL,
				display_name VARCHAR(255)  NOT NULL,
				size_bytes   BIGINT        NOT NULL,
				content_type VARCHAR(255)  NOT NULL,
				created_at   TIMESTAMPTZ   NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_file_object_transfer ON file_object(transfer_id);
		`,
	},
	{
		Version: "000004_create_recipients",
		SQL: `
			CREATE TABLE IF NOT EXISTS recipient (
				id            UUID         PRIMARY KEY,
				transfer_id   UUID         NOT NULL REFERENCES transfer(id) ON DELETE CASCADE,
				email         VARCHAR(255) NOT NULL,
				sent_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				opened_at     TIMESTAMPTZ,
				downloaded_at TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_recipient_transfer ON recipient(transfer_id);
		`,
	},
	{
		Version: "000005_create_transfer_events",
		SQL: `
			CREATE TABLE IF NOT EXISTS transfer_event (
				id          BIGSERIAL   PRIMARY KEY,
				transfer_id UUID        NOT NULL REFERENCES transfer(id) ON DELETE CASCADE,
				event_type  VARCHAR(32) NOT NULL,
				metadata    JSONB       NOT NULL DEFAULT '{}',
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_transfer_event_transfer ON transfer_event(transfer_id);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
