// Package store persists place records and search analytics. Two backends
// exist: Postgres for deployments and SQLite for local development. Both
// honor the same upsert contract: (source, external_id) is the identity and
// refreshes touch only the volatile columns.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pizza-search/internal/config"
	"github.com/sells-group/pizza-search/internal/model"
)

// Store is the persistence interface for places and search analytics.
type Store interface {
	// QueryByRadius returns places within radiusMiles of the point,
	// nearest first.
	QueryByRadius(ctx context.Context, lat, lng, radiusMiles float64) ([]model.Place, error)

	// GetPlace returns the place with the given row ID, or (nil, nil)
	// when no such row exists.
	GetPlace(ctx context.Context, id string) (*model.Place, error)

	// ListPlaces returns a page ordered by rating (absent last) then
	// review count, plus the total row count.
	ListPlaces(ctx context.Context, limit, offset int) ([]model.Place, int, error)

	// UpsertPlace inserts or refreshes one place keyed on
	// (source, external_id). Refreshes update only name, rating,
	// review_count, has_delivery, and last_updated.
	UpsertPlace(ctx context.Context, place model.Place) error

	// BulkUpsertPlaces upserts a batch with the same refresh semantics
	// and returns the number of rows written.
	BulkUpsertPlaces(ctx context.Context, places []model.Place) (int64, error)

	// LogSearchEvent appends one analytics record.
	LogSearchEvent(ctx context.Context, event model.SearchEvent) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// New creates the store named by the driver config.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres", "":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
