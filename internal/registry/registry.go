// Package registry provides access to the query definition store.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kumitate/internal/config"
	"github.com/hyperjump/kumitate/internal/models"
)

// ErrUnavailable wraps transport or auth failures against the backing store.
var ErrUnavailable = errors.New("registry unavailable")

// ErrNotFound is returned when no definition with the given name exists.
var ErrNotFound = errors.New("definition not found")

// CategoryStats is the per-category breakdown of registry contents.
type CategoryStats struct {
	Name     string `json:"name"`
	Total    int    `json:"total"`
	Enabled  int    `json:"enabled"`
	Disabled int    `json:"disabled"`
}

// Stats summarizes the registry contents.
type Stats struct {
	Total      int             `json:"total"`
	Enabled    int             `json:"enabled"`
	Disabled   int             `json:"disabled"`
	Categories []CategoryStats `json:"categories"`
}

// Registry is the query definition store. FetchEnabled is the only operation
// the compile pipeline uses; it returns a point-in-time snapshot of all
// enabled definitions with no side effects and no retries. The remaining
// operations serve the editor side: seeding, status, and tests. Note that the
// store enforces no uniqueness on definition names; operations that key on a
// name affect every row carrying it.
type Registry interface {
	FetchEnabled(ctx context.Context) ([]models.QueryDefinition, error)

	Create(ctx context.Context, def *models.QueryDefinition) error
	Update(ctx context.Context, def *models.QueryDefinition) error
	SetEnabled(ctx context.Context, name string, enabled bool) error
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*models.QueryDefinition, error)
	List(ctx context.Context) ([]models.QueryDefinition, error)
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// Open creates a registry for the configured driver.
func Open(cfg *config.RegistryConfig) (Registry, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteRegistry(cfg.Path, cfg.Table)
	case "postgres":
		return NewPostgresRegistry(cfg.DSN, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown registry driver %q (want sqlite or postgres)", cfg.Driver)
	}
}
