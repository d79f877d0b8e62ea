package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pizza-search/internal/geo"
	"github.com/sells-group/pizza-search/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Radius queries use
// a bounding-box index scan with the exact great-circle filter applied in Go,
// since SQLite has no trig functions we can rely on.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	id                    TEXT PRIMARY KEY,
	source                TEXT NOT NULL,
	external_id           TEXT NOT NULL,
	name                  TEXT NOT NULL,
	address               TEXT NOT NULL DEFAULT '',
	city                  TEXT NOT NULL DEFAULT '',
	state                 TEXT NOT NULL DEFAULT '',
	zipcode               TEXT NOT NULL DEFAULT '',
	lat                   REAL NOT NULL,
	lng                   REAL NOT NULL,
	phone                 TEXT NOT NULL DEFAULT '',
	website               TEXT NOT NULL DEFAULT '',
	is_dedicated_pizzeria INTEGER NOT NULL DEFAULT 0,
	has_delivery          INTEGER NOT NULL DEFAULT 0,
	has_pizza_menu        INTEGER NOT NULL DEFAULT 1,
	rating                REAL,
	review_count          INTEGER NOT NULL DEFAULT 0,
	price_level           INTEGER,
	metadata              TEXT,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	last_updated          DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_places_lat_lng ON places(lat, lng);
CREATE INDEX IF NOT EXISTS idx_places_zipcode ON places(zipcode);

CREATE TABLE IF NOT EXISTS search_history (
	id               TEXT PRIMARY KEY,
	zipcode          TEXT NOT NULL,
	lat              REAL NOT NULL,
	lng              REAL NOT NULL,
	radius_miles     REAL NOT NULL,
	result_count     INTEGER NOT NULL,
	response_time_ms INTEGER NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_search_history_zipcode ON search_history(zipcode);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// milesPerLatDegree approximates one degree of latitude.
const milesPerLatDegree = 69.0

func (s *SQLiteStore) QueryByRadius(ctx context.Context, lat, lng, radiusMiles float64) ([]model.Place, error) {
	latDelta := radiusMiles / milesPerLatDegree
	lngScale := math.Cos(lat * math.Pi / 180)
	if lngScale < 0.01 {
		lngScale = 0.01
	}
	lngDelta := radiusMiles / (milesPerLatDegree * lngScale)

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, external_id, name, address, city, state, zipcode,
		        lat, lng, phone, website, is_dedicated_pizzeria, has_delivery,
		        has_pizza_menu, rating, review_count, price_level, metadata
		 FROM places
		 WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`,
		lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query by radius")
	}
	defer rows.Close()

	origin := model.Coordinates{Lat: lat, Lng: lng}
	type withDistance struct {
		place model.Place
		miles float64
	}
	var candidates []withDistance
	for rows.Next() {
		var (
			p            model.Place
			storedSource string
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&storedSource, &p.ExternalID, &p.Name, &p.Address,
			&p.City, &p.State, &p.Zipcode, &p.Coordinates.Lat, &p.Coordinates.Lng,
			&p.Phone, &p.Website, &p.IsDedicatedPizzeria, &p.HasDelivery,
			&p.HasPizzaMenu, &p.Rating, &p.ReviewCount, &p.PriceLevel,
			&metadataJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan place")
		}

		miles := geo.DistanceMiles(origin, p.Coordinates)
		if miles > radiusMiles {
			continue
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &p.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
			}
		}
		if p.Metadata == nil {
			p.Metadata = map[string]any{}
		}
		p.Metadata["origin_source"] = storedSource
		p.Source = model.SourceDatabase
		candidates = append(candidates, withDistance{place: p, miles: miles})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: query by radius iterate")
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].miles < candidates[j].miles
	})
	places := make([]model.Place, 0, len(candidates))
	for _, c := range candidates {
		places = append(places, c.place)
	}
	return places, nil
}

func (s *SQLiteStore) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, external_id, name, address, city, state, zipcode,
		        lat, lng, phone, website, is_dedicated_pizzeria, has_delivery,
		        has_pizza_menu, rating, review_count, price_level, metadata
		 FROM places WHERE id = ?`, id)

	p, err := scanSQLiteStoredPlace(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListPlaces(ctx context.Context, limit, offset int) ([]model.Place, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM places`).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count places")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, external_id, name, address, city, state, zipcode,
		        lat, lng, phone, website, is_dedicated_pizzeria, has_delivery,
		        has_pizza_menu, rating, review_count, price_level, metadata
		 FROM places
		 ORDER BY rating DESC NULLS LAST, review_count DESC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list places")
	}
	defer rows.Close()

	var places []model.Place
	for rows.Next() {
		p, err := scanSQLiteStoredPlace(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		places = append(places, p)
	}
	return places, total, eris.Wrap(rows.Err(), "sqlite: list places iterate")
}

// scanSQLiteStoredPlace reads one pizzerias-resource row, keeping the stored
// source as-is.
func scanSQLiteStoredPlace(scan func(dest ...any) error) (model.Place, error) {
	var (
		p            model.Place
		storedSource string
		metadataJSON sql.NullString
	)
	if err := scan(&p.ID, &storedSource, &p.ExternalID, &p.Name, &p.Address,
		&p.City, &p.State, &p.Zipcode, &p.Coordinates.Lat, &p.Coordinates.Lng,
		&p.Phone, &p.Website, &p.IsDedicatedPizzeria, &p.HasDelivery,
		&p.HasPizzaMenu, &p.Rating, &p.ReviewCount, &p.PriceLevel,
		&metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Place{}, err
		}
		return model.Place{}, eris.Wrap(err, "sqlite: scan stored place")
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &p.Metadata); err != nil {
			return model.Place{}, eris.Wrap(err, "sqlite: unmarshal metadata")
		}
	}
	p.Source = model.Source(storedSource)
	return p, nil
}

const sqliteUpsertPlaceSQL = `
INSERT INTO places
	(id, source, external_id, name, address, city, state, zipcode, lat, lng,
	 phone, website, is_dedicated_pizzeria, has_delivery, has_pizza_menu,
	 rating, review_count, price_level, metadata, created_at, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, external_id) DO UPDATE SET
	name = excluded.name,
	rating = excluded.rating,
	review_count = excluded.review_count,
	has_delivery = excluded.has_delivery,
	last_updated = excluded.last_updated`

func (s *SQLiteStore) UpsertPlace(ctx context.Context, place model.Place) error {
	args, err := sqlitePlaceArgs(place)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertPlaceSQL, args...)
	return eris.Wrapf(err, "sqlite: upsert place %s/%s", place.Source, place.ExternalID)
}

func (s *SQLiteStore) BulkUpsertPlaces(ctx context.Context, places []model.Place) (int64, error) {
	if len(places) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertPlaceSQL)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	var written int64
	for _, place := range places {
		args, err := sqlitePlaceArgs(place)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert place %s/%s", place.Source, place.ExternalID)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return written, nil
}

func sqlitePlaceArgs(place model.Place) ([]any, error) {
	metadataJSON, err := json.Marshal(place.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal metadata")
	}
	now := time.Now().UTC()
	return []any{
		uuid.New().String(), string(place.Source), place.ExternalID,
		place.Name, place.Address, place.City, place.State, place.Zipcode,
		place.Coordinates.Lat, place.Coordinates.Lng, place.Phone,
		place.Website, place.IsDedicatedPizzeria, place.HasDelivery,
		place.HasPizzaMenu, place.Rating, place.ReviewCount,
		place.PriceLevel, string(metadataJSON), now, now,
	}, nil
}

func (s *SQLiteStore) LogSearchEvent(ctx context.Context, event model.SearchEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history
		 (id, zipcode, lat, lng, radius_miles, result_count, response_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Zipcode, event.Lat, event.Lng, event.RadiusMiles,
		event.ResultCount, event.ResponseTimeMs, event.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: log search event")
}
