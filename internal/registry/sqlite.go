// Package registry provides the SQLite implementation of the Registry interface.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kumitate/internal/models"
)

// SQLiteRegistry implements Registry using a local SQLite database. It is the
// embedded backend used in development and single-node deployments.
type SQLiteRegistry struct {
	db    *sql.DB
	table string
}

// NewSQLiteRegistry opens or creates a SQLite database at dbPath and
// initializes the registry schema. Parent directories are created if they do
// not exist. The schema deliberately carries no uniqueness constraint on
// query_name; the validator is the sole enforcement point.
func NewSQLiteRegistry(dbPath, table string) (*SQLiteRegistry, error) {
	if table == "" {
		table = "query_registry"
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	r := &SQLiteRegistry{db: db, table: table}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRegistry) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		query_name TEXT NOT NULL,
		query_category TEXT NOT NULL DEFAULT '',
		query_sql TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		parameters TEXT NOT NULL DEFAULT '[]',
		enabled INTEGER NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_registry_name ON %s(query_name);
	CREATE INDEX IF NOT EXISTS idx_registry_category ON %s(query_category);
	`, r.table, r.table, r.table)
	_, err := r.db.Exec(schema)
	return err
}

const definitionColumns = `query_name, query_category, query_sql, description, parameters, enabled, created_by, tags, created_at, updated_at`

// FetchEnabled returns a point-in-time snapshot of all enabled definitions,
// ordered by category then name.
func (r *SQLiteRegistry) FetchEnabled(ctx context.Context) ([]models.QueryDefinition, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE enabled = 1 ORDER BY query_category, query_name`,
		definitionColumns, r.table,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// List returns every definition, enabled or not.
func (r *SQLiteRegistry) List(ctx context.Context) ([]models.QueryDefinition, error) {
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

// Get returns the definition with the given name. When duplicates exist, the
// first by insertion order is returned.
func (r *SQLiteRegistry) Get(ctx context.Context, name string) (*models.QueryDefinition, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE query_name = ? LIMIT 1`,
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
func (r *SQLiteRegistry) Create(ctx context.Context, def *models.QueryDefinition) error {
	params, tags, err := encodeJSONFields(def)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now
	_, err = r.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.table, definitionColumns,
	), def.Name, def.Category, def.Statement, def.Description, params, def.Enabled, def.CreatedBy, tags, def.CreatedAt, def.UpdatedAt)
	return err
}

// Update rewrites every row matching the definition's name.
func (r *SQLiteRegistry) Update(ctx context.Context, def *models.QueryDefinition) error {
	params, tags, err := encodeJSONFields(def)
	if err != nil {
		return err
	}
	def.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET query_category = ?, query_sql = ?, description = ?, parameters = ?, enabled = ?, tags = ?, updated_at = ?
		 WHERE query_name = ?`, r.table,
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
func (r *SQLiteRegistry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET enabled = ?, updated_at = ? WHERE query_name = ?`, r.table,
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
func (r *SQLiteRegistry) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE query_name = ?`, r.table), name)
	return err
}

// Stats returns totals and the per-category breakdown.
func (r *SQLiteRegistry) Stats(ctx context.Context) (*Stats, error) {
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
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.QueryDefinition, error) {
	var def models.QueryDefinition
	var paramsJSON, tagsJSON string
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&def.Name, &def.Category, &def.Statement, &def.Description,
		&paramsJSON, &def.Enabled, &def.CreatedBy, &tagsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJSONFields(&def, paramsJSON, tagsJSON); err != nil {
		return nil, err
	}
	def.CreatedAt = createdAt.Time
	def.UpdatedAt = updatedAt.Time
	return &def, nil
}

func scanDefinitions(rows *sql.Rows) ([]models.QueryDefinition, error) {
	var defs []models.QueryDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

func encodeJSONFields(def *models.QueryDefinition) (params, tags string, err error) {
	p := def.Parameters
	if p == nil {
		p = []models.ParameterSpec{}
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal parameters: %w", err)
	}
	tg := def.Tags
	if tg == nil {
		tg = []string{}
	}
	tb, err := json.Marshal(tg)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(pb), string(tb), nil
}

func decodeJSONFields(def *models.QueryDefinition, paramsJSON, tagsJSON string) error {
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &def.Parameters); err != nil {
			return fmt.Errorf("invalid parameters JSON for %q: %w", def.Name, err)
		}
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &def.Tags); err != nil {
			return fmt.Errorf("invalid tags JSON for %q: %w", def.Name, err)
		}
	}
	return nil
}
