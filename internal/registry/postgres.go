// Package registry provides the Postgres implementation of the Registry interface.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hyperjump/kumitate/internal/models"
)

// PostgresRegistry implements Registry against a Postgres database through the
// pgx stdlib driver. It is the shared backend for multi-editor deployments.
type PostgresRegistry struct {
	db    *sql.DB
	table string
}

// NewPostgresRegistry connects to the database described by dsn and ensures
// the registry schema exists. As with SQLite, query_name carries no uniqueness
// constraint.
func NewPostgresRegistry(dsn, table string) (*PostgresRegistry, error) {
	if table == "" {
		table = "query_registry"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r := &PostgresRegistry{db: db, table: table}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *PostgresRegistry) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		query_name TEXT NOT NULL,
		query_category TEXT NOT NULL DEFAULT '',
		query_sql TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		parameters JSONB NOT NULL DEFAULT '[]',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_by TEXT NOT NULL DEFAULT '',
		tags JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_registry_name ON %s(query_name);
	CREATE INDEX IF NOT EXISTS idx_registry_category ON %s(query_category);
	`, r.table, r.table, r.table)
	_, err := r.db.Exec(schema)
	return err
}

// FetchEnabled returns a point-in-time snapshot of all enabled definitions,
// ordered by category then name.
func (r *PostgresRegistry) FetchEnabled(ctx context.Context) ([]models.QueryDefinition, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE enabled ORDER BY query_category, query_name`,
		definitionColumns, r.table,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// List returns every definition, enabled or not.
func (r *PostgresRegistry) List(ctx context.Context) ([]models.QueryDefinition, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s ORDER BY query_category, query_name`,
		definitionColumns, r.table,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// Get returns the definition with the given name.
func (r *PostgresRegistry) Get(ctx context.Context, name string) (*models.QueryDefinition, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE query_name = $1 LIMIT 1`,
		definitionColumns, r.table,
	), name)
	def, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

// Create inserts a definition and stamps its timestamps.
func (r *PostgresRegistry) Create(ctx context.Context, def *models.QueryDefinition) error {
	params, tags, err := encodeJSONFields(def)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now
	_, err = r.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.table, definitionColumns,
	), def.Name, def.Category, def.Statement, def.Description, params, def.Enabled, def.CreatedBy, tags, def.CreatedAt, def.UpdatedAt)
	return err
}

// Update rewrites every row matching the definition's name.
func (r *PostgresRegistry) Update(ctx context.Context, def *models.QueryDefinition) error {
	params, tags, err := encodeJSONFields(def)
	if err != nil {
		return err
	}
	def.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET query_category = $1, query_sql = $2, description = $3, parameters = $4, enabled = $5, tags = $6, updated_at = $7
		 WHERE query_name = $8`, r.table,
	), def.Category, def.Statement, def.Description, params, def.Enabled, tags, def.UpdatedAt, def.Name)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, def.Name)
	}
	return nil
}

// SetEnabled flips the enabled flag on every row matching name.
func (r *PostgresRegistry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET enabled = $1, updated_at = $2 WHERE query_name = $3`, r.table,
	), enabled, time.Now().UTC(), name)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Delete removes every row matching name.
func (r *PostgresRegistry) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE query_name = $1`, r.table), name)
	return err
}

// Stats returns totals and the per-category breakdown.
func (r *PostgresRegistry) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN enabled THEN 1 ELSE 0 END), 0) FROM %s`, r.table,
	)).Scan(&stats.Total, &stats.Enabled)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	stats.Disabled = stats.Total - stats.Enabled

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT query_category, COUNT(*), COALESCE(SUM(CASE WHEN enabled THEN 1 ELSE 0 END), 0)
		 FROM %s GROUP BY query_category ORDER BY query_category`, r.table,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var c CategoryStats
		if err := rows.Scan(&c.Name, &c.Total, &c.Enabled); err != nil {
			return nil, err
		}
		c.Disabled = c.Total - c.Enabled
		stats.Categories = append(stats.Categories, c)
	}
	return stats, rows.Err()
}

// Close closes the database connection.
func (r *PostgresRegistry) Close() error {
	return r.db.Close()
}
