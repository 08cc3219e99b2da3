package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearAll truncates the schema store and the audit log. Schema is preserved.
func ClearAll(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing command tables", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE
		command_schemas,
		command_releases,
		command_audit
		CASCADE`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Command tables cleared", clearLogPrefix))
	return nil
}
