package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/hyperjump/kumitate/internal/models"
)

// Postgres tests run against sqlmock; the SQL surface is shared with the
// SQLite backend, which is covered against a real database.

func newMockPostgres(t *testing.T) (*PostgresRegistry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresRegistry{db: db, table: "query_registry"}, mock
}

func definitionRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"query_name", "query_category", "query_sql", "description",
		"parameters", "enabled", "created_by", "tags", "created_at", "updated_at",
	}).AddRow(
		"daily_sales", "sales", "SELECT 1", "desc",
		`[{"name":"limit","kind":"integer","required":false,"default":10}]`,
		true, "test", `["sample"]`, now, now,
	)
}

func TestPostgresFetchEnabled(t *testing.T) {
	reg, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT (.+) FROM query_registry WHERE enabled ORDER BY query_category, query_name`).
		WillReturnRows(definitionRows())

	defs, err := reg.FetchEnabled(context.Background())
	if err != nil {
		t.Fatalf("FetchEnabled: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "daily_sales" {
		t.Fatalf("snapshot: %+v", defs)
	}
	p := defs[0].Parameters
	if len(p) != 1 || p[0].Kind != models.KindInteger || p[0].Default != float64(10) {
		t.Errorf("parameters: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresFetchEnabledUnavailable(t *testing.T) {
	reg, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT (.+) FROM query_registry WHERE enabled`).
		WillReturnError(errors.New("connection refused"))

	_, err := reg.FetchEnabled(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPostgresStats(t *testing.T) {
	reg, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "enabled"}).AddRow(3, 2))
	mock.ExpectQuery(`SELECT query_category, COUNT\(\*\), COALESCE`).
		WillReturnRows(sqlmock.NewRows([]string{"query_category", "count", "enabled"}).
			AddRow("ops", 1, 1).AddRow("sales", 2, 1))

	stats, err := reg.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.Enabled != 2 || stats.Disabled != 1 {
		t.Errorf("totals: %+v", stats)
	}
	if len(stats.Categories) != 2 || stats.Categories[1].Disabled != 1 {
		t.Errorf("categories: %+v", stats.Categories)
	}
}

func TestPostgresSetEnabledNotFound(t *testing.T) {
	reg, mock := newMockPostgres(t)
	mock.ExpectExec(`UPDATE query_registry SET enabled`).
		WithArgs(true, sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := reg.SetEnabled(context.Background(), "missing", true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
