package model

import "time"

// Source identifies where a place record originated.
type Source string

const (
	SourceDatabase Source = "database"
	SourceGoogle   Source = "google"
	SourceYelp     Source = "yelp"
	SourceManual   Source = "manual"
)

// Coordinates is a WGS84 lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates carry a real position. The zero
// value (0,0) is treated as absent.
func (c Coordinates) Valid() bool {
	return c.Lat != 0 || c.Lng != 0
}

// Place is the canonical record every source is normalized into before
// deduplication. The (Source, ExternalID) pair is the only stable identity
// prior to merging and is the upsert key in the persistence layer.
type Place struct {
	// ID is the storage row key. Set on records read back from the store;
	// empty on freshly normalized provider results.
	ID string `json:"id,omitempty"`

	Source     Source `json:"source"`
	ExternalID string `json:"external_id"`

	Name        string      `json:"name"`
	Address     string      `json:"address,omitempty"`
	City        string      `json:"city,omitempty"`
	State       string      `json:"state,omitempty"`
	Zipcode     string      `json:"zipcode,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	Phone       string      `json:"phone,omitempty"`
	Website     string      `json:"website,omitempty"`

	IsDedicatedPizzeria bool `json:"is_dedicated_pizzeria"`
	HasDelivery         bool `json:"has_delivery"`
	HasPizzaMenu        bool `json:"has_pizza_menu"`

	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount int      `json:"review_count"`
	PriceLevel  *int     `json:"price_level,omitempty"`

	// Metadata holds provider-specific extras. After merging it gains
	// duplicate_sources and merged_ids entries (append-only).
	Metadata map[string]any `json:"metadata,omitempty"`

	// Derived fields, computed per search. Never persisted as source of truth.
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
	DisplayScore  float64  `json:"display_score,omitempty"`
}

// RatingValue returns the rating, treating absent as 0.
func (p Place) RatingValue() float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// SearchRequest is a validated inbound search.
type SearchRequest struct {
	Zipcode     string  `json:"zipcode"`
	RadiusMiles float64 `json:"radius_miles"`

	// IncludeNonDedicated widens results to restaurants that merely carry a
	// pizza menu. Tri-state: leaving it unset means true, so only an
	// explicit false narrows to dedicated pizzerias.
	IncludeNonDedicated *bool `json:"include_non_dedicated,omitempty"`
}

// WantsNonDedicated reports whether non-dedicated places stay in the
// response.
func (r SearchRequest) WantsNonDedicated() bool {
	return r.IncludeNonDedicated == nil || *r.IncludeNonDedicated
}

// Location describes the resolved center of a search.
type Location struct {
	Zipcode string  `json:"zipcode"`
	City    string  `json:"city,omitempty"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// SearchResult is the ordered, deduplicated answer for one search.
type SearchResult struct {
	Success     bool     `json:"success"`
	Cached      bool     `json:"cached"`
	Location    Location `json:"location"`
	RadiusMiles float64  `json:"radius_miles"`
	Results     []Place  `json:"results"`
	Count       int      `json:"count"`

	// Sources maps source name to the raw (pre-dedup) count it contributed.
	Sources map[string]int `json:"sources,omitempty"`

	// Degraded is true when the local store query failed and its results
	// were substituted with an empty set.
	Degraded bool `json:"degraded,omitempty"`

	ResponseTimeMs int64 `json:"response_time_ms"`
}

// SearchEvent is the analytics record written after each uncached search.
type SearchEvent struct {
	ID             string    `json:"id"`
	Zipcode        string    `json:"zipcode"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	RadiusMiles    float64   `json:"radius_miles"`
	ResultCount    int       `json:"result_count"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
