package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pizza-search/internal/db"
	"github.com/sells-group/pizza-search/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// placeColumns is the column order shared by the single and bulk upsert
// paths. refreshColumns are the only columns a conflicting row may change.
var (
	placeColumns = []string{
		"id", "source", "external_id", "name", "address", "city", "state",
		"zipcode", "lat", "lng", "phone", "website", "is_dedicated_pizzeria",
		"has_delivery", "has_pizza_menu", "rating", "review_count",
		"price_level", "metadata", "created_at", "last_updated",
	}
	refreshColumns = []string{"name", "rating", "review_count", "has_delivery", "last_updated"}
)

const upsertPlaceSQL = `
INSERT INTO places
	(id, source, external_id, name, address, city, state, zipcode, lat, lng,
	 phone, website, is_dedicated_pizzeria, has_delivery, has_pizza_menu,
	 rating, review_count, price_level, metadata, created_at, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
ON CONFLICT (source, external_id) DO UPDATE SET
	name = EXCLUDED.name,
	rating = EXCLUDED.rating,
	review_count = EXCLUDED.review_count,
	has_delivery = EXCLUDED.has_delivery,
	last_updated = EXCLUDED.last_updated`

const queryByRadiusSQL = `
SELECT source, external_id, name, address, city, state, zipcode, lat, lng,
       phone, website, is_dedicated_pizzeria, has_delivery, has_pizza_menu,
       rating, review_count, price_level, metadata
FROM (
	SELECT *, 3958.8 * acos(least(1.0,
		cos(radians($1)) * cos(radians(lat)) * cos(radians(lng) - radians($2))
		+ sin(radians($1)) * sin(radians(lat)))) AS distance_miles
	FROM places
) p
WHERE distance_miles <= $3
ORDER BY distance_miles ASC`

const getPlaceSQL = `
SELECT id, source, external_id, name, address, city, state, zipcode, lat, lng,
       phone, website, is_dedicated_pizzeria, has_delivery, has_pizza_menu,
       rating, review_count, price_level, metadata
FROM places
WHERE id = $1`

const listPlacesSQL = `
SELECT id, source, external_id, name, address, city, state, zipcode, lat, lng,
       phone, website, is_dedicated_pizzeria, has_delivery, has_pizza_menu,
       rating, review_count, price_level, metadata
FROM places
ORDER BY rating DESC NULLS LAST, review_count DESC
LIMIT $1 OFFSET $2`

const countPlacesSQL = `SELECT count(*) FROM places`

const logSearchEventSQL = `
INSERT INTO search_history
	(id, zipcode, lat, lng, radius_miles, result_count, response_time_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"upsert_place":     upsertPlaceSQL,
	"query_by_radius":  queryByRadiusSQL,
	"get_place":        getPlaceSQL,
	"list_places":      listPlacesSQL,
	"log_search_event": logSearchEventSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for use by subsystems
// that need direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS places (
	id                    TEXT PRIMARY KEY,
	source                TEXT NOT NULL,
	external_id           TEXT NOT NULL,
	name                  TEXT NOT NULL,
	address               TEXT,
	city                  TEXT,
	state                 TEXT,
	zipcode               TEXT,
	lat                   DOUBLE PRECISION NOT NULL,
	lng                   DOUBLE PRECISION NOT NULL,
	phone                 TEXT,
	website               TEXT,
	is_dedicated_pizzeria BOOLEAN NOT NULL DEFAULT false,
	has_delivery          BOOLEAN NOT NULL DEFAULT false,
	has_pizza_menu        BOOLEAN NOT NULL DEFAULT true,
	rating                DOUBLE PRECISION,
	review_count          INTEGER NOT NULL DEFAULT 0,
	price_level           INTEGER,
	metadata              JSONB,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_updated          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_places_lat_lng ON places(lat, lng);
CREATE INDEX IF NOT EXISTS idx_places_zipcode ON places(zipcode);
CREATE INDEX IF NOT EXISTS idx_places_last_updated ON places(last_updated);

CREATE TABLE IF NOT EXISTS search_history (
	id               TEXT PRIMARY KEY,
	zipcode          TEXT NOT NULL,
	lat              DOUBLE PRECISION NOT NULL,
	lng              DOUBLE PRECISION NOT NULL,
	radius_miles     DOUBLE PRECISION NOT NULL,
	result_count     INTEGER NOT NULL,
	response_time_ms BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_search_history_zipcode ON search_history(zipcode);
CREATE INDEX IF NOT EXISTS idx_search_history_created_at ON search_history(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) QueryByRadius(ctx context.Context, lat, lng, radiusMiles float64) ([]model.Place, error) {
	rows, err := s.pool.Query(ctx, queryByRadiusSQL, lat, lng, radiusMiles)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query by radius")
	}
	defer rows.Close()

	var places []model.Place
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, p)
	}
	return places, eris.Wrap(rows.Err(), "postgres: query by radius iterate")
}

// scanPlace reads one stored row. The record is relabeled with the database
// source so per-source counts distinguish stored results from live provider
// fetches; the originating provider survives in metadata.
func scanPlace(rows pgx.Rows) (model.Place, error) {
	var (
		p            model.Place
		storedSource string
		metadataJSON []byte
	)
	err := rows.Scan(&storedSource, &p.ExternalID, &p.Name, &p.Address, &p.City,
		&p.State, &p.Zipcode, &p.Coordinates.Lat, &p.Coordinates.Lng,
		&p.Phone, &p.Website, &p.IsDedicatedPizzeria, &p.HasDelivery,
		&p.HasPizzaMenu, &p.Rating, &p.ReviewCount, &p.PriceLevel, &metadataJSON)
	if err != nil {
		return model.Place{}, eris.Wrap(err, "postgres: scan place")
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &p.Metadata); err != nil {
			return model.Place{}, eris.Wrap(err, "postgres: unmarshal metadata")
		}
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.Metadata["origin_source"] = storedSource
	p.Source = model.SourceDatabase
	return p, nil
}

func (s *PostgresStore) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	rows, err := s.pool.Query(ctx, getPlaceSQL, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get place")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, eris.Wrap(rows.Err(), "postgres: get place iterate")
	}
	p, err := scanStoredPlace(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListPlaces(ctx context.Context, limit, offset int) ([]model.Place, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, countPlacesSQL).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count places")
	}

	rows, err := s.pool.Query(ctx, listPlacesSQL, limit, offset)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list places")
	}
	defer rows.Close()

	var places []model.Place
	for rows.Next() {
		p, err := scanStoredPlace(rows)
		if err != nil {
			return nil, 0, err
		}
		places = append(places, p)
	}
	return places, total, eris.Wrap(rows.Err(), "postgres: list places iterate")
}

// scanStoredPlace reads one row for the pizzerias resource. Unlike the
// search path, the stored source is kept as-is.
func scanStoredPlace(rows pgx.Rows) (model.Place, error) {
	var (
		p            model.Place
		storedSource string
		metadataJSON []byte
	)
	err := rows.Scan(&p.ID, &storedSource, &p.ExternalID, &p.Name, &p.Address,
		&p.City, &p.State, &p.Zipcode, &p.Coordinates.Lat, &p.Coordinates.Lng,
		&p.Phone, &p.Website, &p.IsDedicatedPizzeria, &p.HasDelivery,
		&p.HasPizzaMenu, &p.Rating, &p.ReviewCount, &p.PriceLevel, &metadataJSON)
	if err != nil {
		return model.Place{}, eris.Wrap(err, "postgres: scan stored place")
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &p.Metadata); err != nil {
			return model.Place{}, eris.Wrap(err, "postgres: unmarshal metadata")
		}
	}
	p.Source = model.Source(storedSource)
	return p, nil
}

func (s *PostgresStore) UpsertPlace(ctx context.Context, place model.Place) error {
	args, err := placeArgs(place)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, upsertPlaceSQL, args...)
	return eris.Wrapf(err, "postgres: upsert place %s/%s", place.Source, place.ExternalID)
}

func (s *PostgresStore) BulkUpsertPlaces(ctx context.Context, places []model.Place) (int64, error) {
	if len(places) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(places))
	for _, place := range places {
		args, err := placeArgs(place)
		if err != nil {
			return 0, err
		}
		rows = append(rows, args)
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "places",
		Columns:      placeColumns,
		ConflictKeys: []string{"source", "external_id"},
		UpdateCols:   refreshColumns,
	}, rows)
}

// placeArgs builds the argument list matching placeColumns.
func placeArgs(place model.Place) ([]any, error) {
	metadataJSON, err := json.Marshal(place.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal metadata")
	}
	now := time.Now().UTC()
	return []any{
		uuid.New().String(), string(place.Source), place.ExternalID,
		place.Name, place.Address, place.City, place.State, place.Zipcode,
		place.Coordinates.Lat, place.Coordinates.Lng, place.Phone,
		place.Website, place.IsDedicatedPizzeria, place.HasDelivery,
		place.HasPizzaMenu, place.Rating, place.ReviewCount,
		place.PriceLevel, metadataJSON, now, now,
	}, nil
}

func (s *PostgresStore) LogSearchEvent(ctx context.Context, event model.SearchEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, logSearchEventSQL,
		event.ID, event.Zipcode, event.Lat, event.Lng, event.RadiusMiles,
		event.ResultCount, event.ResponseTimeMs, event.CreatedAt,
	)
	return eris.Wrap(err, "postgres: log search event")
}
