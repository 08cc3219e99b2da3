package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/cephapi/pkg/catalog"
	"github.com/morezero/cephapi/pkg/schema"
)

const repoLogPrefix = "db:repository"

const defaultAuditLimit = 50

// Repository provides database access for the schema store and the audit log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// =========================================================================
// SCHEMA STORE
// =========================================================================

// SaveCatalog replaces the stored commands of cat.Release with cat's commands.
func (r *Repository) SaveCatalog(ctx context.Context, cat *catalog.Catalog) error {
	if cat == nil || cat.Release == "" {
		return fmt.Errorf("%s - SaveCatalog: catalog has no release", repoLogPrefix)
	}
	slog.Info(fmt.Sprintf("%s - SaveCatalog release=%s commands=%d", repoLogPrefix, cat.Release, len(cat.Commands)))

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO command_releases (release, version, commands, modified)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (release) DO UPDATE SET
			   version = $2,
			   commands = $3,
			   modified = $4`,
			cat.Release, cat.Version, len(cat.Commands), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("%s - SaveCatalog upsert release failed: %w", repoLogPrefix, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM command_schemas WHERE release = $1`, cat.Release); err != nil {
			return fmt.Errorf("%s - SaveCatalog delete failed: %w", repoLogPrefix, err)
		}

		batch := &pgx.Batch{}
		for i := range cat.Commands {
			s := &cat.Commands[i]
			params, err := json.Marshal(s.Params)
			if err != nil {
				return fmt.Errorf("%s - SaveCatalog encode %s params: %w", repoLogPrefix, s.Name, err)
			}
			batch.Queue(
				`INSERT INTO command_schemas (release, name, prefix, module, help, params, position)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				cat.Release, s.Name, s.CommandPrefix(), s.Module, s.Help, params, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%s - SaveCatalog insert failed: %w", repoLogPrefix, err)
		}
		return nil
	})
}

// LoadCatalog reads a stored release. It returns nil, nil when the release is not stored.
func (r *Repository) LoadCatalog(ctx context.Context, release string) (*catalog.Catalog, error) {
	slog.Debug(fmt.Sprintf("%s - LoadCatalog release=%s", repoLogPrefix, release))

	cat := &catalog.Catalog{Release: release}
	err := r.pool.QueryRow(ctx,
		`SELECT version FROM command_releases WHERE release = $1`, release).Scan(&cat.Version)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - LoadCatalog failed: %w", repoLogPrefix, err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT name, prefix, module, help, params
		 FROM command_schemas
		 WHERE release = $1
		 ORDER BY position, name`, release)
	if err != nil {
		return nil, fmt.Errorf("%s - LoadCatalog query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var s schema.CommandSchema
		var params []byte
		if err := rows.Scan(&s.Name, &s.Prefix, &s.Module, &s.Help, &params); err != nil {
			return nil, fmt.Errorf("%s - LoadCatalog scan failed: %w", repoLogPrefix, err)
		}
		if err := json.Unmarshal(params, &s.Params); err != nil {
			return nil, fmt.Errorf("%s - LoadCatalog decode %s params: %w", repoLogPrefix, s.Name, err)
		}
		cat.Commands = append(cat.Commands, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - LoadCatalog rows: %w", repoLogPrefix, err)
	}
	if err := cat.Check(); err != nil {
		return nil, err
	}
	return cat, nil
}

// ListReleases returns the stored releases ordered by name.
func (r *Repository) ListReleases(ctx context.Context) ([]ReleaseRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT release, version, commands, modified FROM command_releases ORDER BY release`)
	if err != nil {
		return nil, fmt.Errorf("%s - ListReleases failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []ReleaseRow
	for rows.Next() {
		var rr ReleaseRow
		if err := rows.Scan(&rr.Release, &rr.Version, &rr.Commands, &rr.Modified); err != nil {
			return nil, fmt.Errorf("%s - ListReleases scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// =========================================================================
// AUDIT LOG
// =========================================================================

// RecordDispatch inserts an audit row. An empty ID is replaced by a new UUID and a
// zero Created by the current time.
func (r *Repository) RecordDispatch(ctx context.Context, rec *AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Created.IsZero() {
		rec.Created = time.Now().UTC()
	}
	var args []byte
	if len(rec.Args) > 0 {
		args = rec.Args
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO command_audit (id, request_id, release, command, args, outcome, code, message, duration_ms, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.RequestID, rec.Release, rec.Command, args, rec.Outcome, rec.Code, rec.Message, rec.DurationMs, rec.Created)
	if err != nil {
		return fmt.Errorf("%s - RecordDispatch failed: %w", repoLogPrefix, err)
	}
	return nil
}

// ListAudit returns the newest audit rows first, filtered by command and outcome when set.
func (r *Repository) ListAudit(ctx context.Context, params ListAuditParams) ([]AuditRecord, error) {
	limit := params.Limit
	if limit < 1 {
		limit = defaultAuditLimit
	}

	query := `SELECT id::text, request_id, release, command, args, outcome, code, message, duration_ms, created
	          FROM command_audit WHERE 1=1`
	args := []interface{}{}
	argIdx := 1
	if params.Command != "" {
		query += fmt.Sprintf(` AND command = $%d`, argIdx)
		args = append(args, params.Command)
		argIdx++
	}
	if params.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, argIdx)
		args = append(args, params.Outcome)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - ListAudit query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var a AuditRecord
		var argsJSON []byte
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Release, &a.Command, &argsJSON,
			&a.Outcome, &a.Code, &a.Message, &a.DurationMs, &a.Created); err != nil {
			return nil, fmt.Errorf("%s - ListAudit scan failed: %w", repoLogPrefix, err)
		}
		a.Args = argsJSON
		out = append(out, a)
	}
	return out, rows.Err()
}
