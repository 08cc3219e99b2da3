// Package db stores command catalogs and the dispatch audit log in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// poolConfig parses databaseURL and applies the pool limits. An application_name
// given in the URL wins over the default.
func poolConfig(databaseURL string) (*pgxpool.Config, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%s - database URL is empty", logPrefix)
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnIdleTime = 5 * time.Minute
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = "cephapi"
	}
	return config, nil
}

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := poolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// MigrationState pairs a migration file with whether it has been applied.
type MigrationState struct {
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// RunMigrations applies, in order, each migration not yet recorded in
// schema_migrations. Every migration runs in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrations)))

	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("%s - create schema_migrations: %w", logPrefix, err)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, ok := applied[m.Name]; ok {
			continue
		}
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", logPrefix, m.Name))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationStatus reports each migration file in migrationPath and whether it is applied.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) ([]MigrationState, error) {
	const statusLogPrefix = "db:MigrationStatus"

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return nil, fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("%s - create schema_migrations: %w", statusLogPrefix, err)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationState, 0, len(files))
	for _, f := range files {
		st := MigrationState{Name: f.Name}
		if at, ok := applied[f.Name]; ok {
			st.Applied = true
			at := at
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

// MigrationDown reverts the most recently applied migration using its down file
// and returns its name. Migrations without a down file cannot be reverted.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (string, error) {
	const downLogPrefix = "db:MigrationDown"

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return "", fmt.Errorf("%s - load migration list: %w", downLogPrefix, err)
	}
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return "", fmt.Errorf("%s - create schema_migrations: %w", downLogPrefix, err)
	}

	var last string
	err = pool.QueryRow(ctx, `SELECT name FROM schema_migrations ORDER BY applied_at DESC, name DESC LIMIT 1`).Scan(&last)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("%s - no applied migrations", downLogPrefix)
	}
	if err != nil {
		return "", fmt.Errorf("%s - find last migration: %w", downLogPrefix, err)
	}

	m := findMigration(files, last)
	if m == nil || m.Down == "" {
		return "", fmt.Errorf("%s - %s has no down migration", downLogPrefix, last)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE name = $1`, last)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s - revert %s: %w", downLogPrefix, last, err)
	}
	slog.Info(fmt.Sprintf("%s - Reverted %s", downLogPrefix, last))
	return last, nil
}

func findMigration(files []Migration, name string) *Migration {
	for i := range files {
		if files[i].Name == name {
			return &files[i]
		}
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	rows, err := pool.Query(ctx, `SELECT name, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - list applied migrations: %w", logPrefix, err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, fmt.Errorf("%s - scan applied migration: %w", logPrefix, err)
		}
		out[name] = at
	}
	return out, rows.Err()
}
