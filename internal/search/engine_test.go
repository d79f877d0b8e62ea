package search

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pizza-search/internal/config"
	"github.com/sells-group/pizza-search/internal/model"
	"github.com/sells-group/pizza-search/internal/provider"
)

var testLocation = model.Location{
	Zipcode: "02128", City: "Boston", State: "MA", Lat: 42.37, Lng: -71.03,
}

func testResolver() *mockResolver {
	return &mockResolver{locations: map[string]model.Location{"02128": testLocation}}
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{DefaultRadiusMiles: 10, MaxRadiusMiles: 50, CacheTTLSecs: 3600}
}

func mkPlace(source model.Source, id, name string, lat, lng float64, rating float64, reviews int) model.Place {
	return model.Place{
		Source:              source,
		ExternalID:          id,
		Name:                name,
		Coordinates:         model.Coordinates{Lat: lat, Lng: lng},
		Rating:              &rating,
		ReviewCount:         reviews,
		IsDedicatedPizzeria: true,
		HasPizzaMenu:        true,
	}
}

func TestSearch_InvalidZipcode(t *testing.T) {
	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: &mockStore{}, Config: testSearchConfig(),
	})

	_, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "not-a-zip"})
	assert.ErrorIs(t, err, ErrInvalidLocation)
}

func TestSearch_UnknownZipcode(t *testing.T) {
	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: &mockStore{}, Config: testSearchConfig(),
	})

	_, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "99999"})
	assert.ErrorIs(t, err, ErrInvalidLocation)
}

func TestSearch_RadiusOutOfRange(t *testing.T) {
	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: &mockStore{}, Config: testSearchConfig(),
	})

	for _, radius := range []float64{-1, 0.5, 51} {
		_, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128", RadiusMiles: radius})
		assert.ErrorIs(t, err, ErrInvalidRadius, "radius %v", radius)
	}
}

func TestSearch_DefaultRadius(t *testing.T) {
	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: &mockStore{}, Config: testSearchConfig(),
	})

	result, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128"})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, result.RadiusMiles, 0.001)
}

func TestSearch_MergesAcrossSources(t *testing.T) {
	// The same pizzeria seen by the store and both providers, with the usual
	// cross-source noise in names, phones and coordinates.
	stored := mkPlace(model.SourceDatabase, "db-1", "Luigi's Pizza", 42.3710, -71.0310, 4.5, 100)
	stored.Phone = "617-555-0100"

	fromGoogle := mkPlace(model.SourceGoogle, "g-1", "Luigis Pizza", 42.37101, -71.03101, 4.3, 220)
	fromGoogle.Phone = "(617) 555-0100"

	fromYelp := mkPlace(model.SourceYelp, "y-1", "Luigi's Pizza", 42.37102, -71.03102, 4.7, 80)
	fromYelp.Phone = "+16175550100"

	st := &mockStore{queryResult: []model.Place{stored}}
	reg := provider.NewRegistry()
	reg.Register(&mockProvider{name: "google", places: []model.Place{fromGoogle}})
	reg.Register(&mockProvider{name: "yelp", places: []model.Place{fromYelp}})

	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: st, Providers: reg, Config: testSearchConfig(),
	})

	result, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128", RadiusMiles: 5})
	require.NoError(t, err)
	require.Len(t, result.Results, 1, "three sightings of one pizzeria collapse")

	p := result.Results[0]
	assert.Equal(t, model.SourceDatabase, p.Source, "stored record survives the merge")
	assert.Equal(t, 400, p.ReviewCount, "review counts accumulate")
	require.NotNil(t, p.Rating)
	assert.InDelta(t, 4.7, *p.Rating, 0.001, "best rating wins")

	// Sources report raw pre-merge counts.
	assert.Equal(t, map[string]int{"database": 1, "google": 1, "yelp": 1}, result.Sources)
	assert.False(t, result.Degraded)
	assert.True(t, result.Success)
	assert.False(t, result.Cached)
}

func TestSearch_ProviderFailureIsPartial(t *testing.T) {
	st := &mockStore{queryResult: []model.Place{
		mkPlace(model.SourceDatabase, "db-1", "Stored Slice", 42.371, -71.031, 4.0, 50),
	}}
	reg := provider.NewRegistry()
	reg.Register(&mockProvider{name: "google", err: eris.New("google: api status OVER_QUERY_LIMIT")})
	reg.Register(&mockProvider{name: "yelp", places: []model.Place{
		mkPlace(model.SourceYelp, "y-1", "Yelp Slice", 42.39, -71.05, 4.2, 90),
	}})

	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: st, Providers: reg, Config: testSearchConfig(),
	})

	result, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128", RadiusMiles: 5})
	require.NoError(t, err, "a failing provider never fails the search")
	assert.Len(t, result.Results, 2)
	assert.Equal(t, 0, result.Sources["google"])
	assert.Equal(t, 1, result.Sources["yelp"])
	assert.False(t, result.Degraded)
}

func TestSearch_StoreFailureDegrades(t *testing.T) {
	st := &mockStore{queryErr: eris.New("postgres: connection refused")}
	reg := provider.NewRegistry()
	reg.Register(&mockProvider{name: "google", places: []model.Place{
		mkPlace(model.SourceGoogle, "g-1", "Live Slice", 42.38, -71.04, 4.1, 30),
	}})

	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: st, Providers: reg, Config: testSearchConfig(),
	})

	result, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128", RadiusMiles: 5})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Len(t, result.Results, 1)
	assert.Equal(t, 0, result.Sources["database"])
}

func TestSearch_CacheHitShortCircuits(t *testing.T) {
	st := &mockStore{queryResult: []model.Place{
		mkPlace(model.SourceDatabase, "db-1", "Stored Slice", 42.371, -71.031, 4.0, 50),
	}}
	google := &mockProvider{name: "google", places: []model.Place{
		mkPlace(model.SourceGoogle, "g-1", "Live Slice", 42.38, -71.04, 4.1, 30),
	}}
	reg := provider.NewRegistry()
	reg.Register(google)

	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: st, Providers: reg,
		Cache: newMemoryCache(), Config: testSearchConfig(),
	})

	req := model.SearchRequest{Zipcode: "02128", RadiusMiles: 5}
	first, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, 1, google.callCount(), "cache hit skips the fan-out")

	st.mu.Lock()
	queries := st.queryCalls
	st.mu.Unlock()
	assert.Equal(t, 1, queries, "cache hit skips the local query")
}

func TestSearch_NonDedicatedIncludedByDefault(t *testing.T) {
	dedicated := mkPlace(model.SourceGoogle, "g-1", "Pure Pizza", 42.371, -71.031, 4.5, 100)
	generic := mkPlace(model.SourceGoogle, "g-2", "Diner With A Pizza Page", 42.372, -71.032, 4.0, 40)
	generic.IsDedicatedPizzeria = false

	reg := provider.NewRegistry()
	reg.Register(&mockProvider{name: "google", places: []model.Place{dedicated, generic}})

	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: &mockStore{}, Providers: reg, Config: testSearchConfig(),
	})

	// A request that never mentions the filter gets the full result set.
	result, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128", RadiusMiles: 5})
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
	assert.Equal(t, 2, result.Count)
}

func TestSearch_DedicatedFilterAppliedAfterCache(t *testing.T) {
	dedicated := mkPlace(model.SourceGoogle, "g-1", "Pure Pizza", 42.371, -71.031, 4.5, 100)
	generic := mkPlace(model.SourceGoogle, "g-2", "Diner With A Pizza Page", 42.372, -71.032, 4.0, 40)
	generic.IsDedicatedPizzeria = false

	reg := provider.NewRegistry()
	reg.Register(&mockProvider{name: "google", places: []model.Place{dedicated, generic}})

	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: &mockStore{}, Providers: reg,
		Cache: newMemoryCache(), Config: testSearchConfig(),
	})

	wide, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128", RadiusMiles: 5})
	require.NoError(t, err)
	assert.Len(t, wide.Results, 2)
	assert.Equal(t, 2, wide.Count)

	// The cached entry keeps the full list, so narrowing to dedicated
	// pizzerias works without refetching.
	includeNonDedicated := false
	narrow, err := e.Search(context.Background(), model.SearchRequest{
		Zipcode: "02128", RadiusMiles: 5, IncludeNonDedicated: &includeNonDedicated,
	})
	require.NoError(t, err)
	assert.True(t, narrow.Cached)
	assert.Len(t, narrow.Results, 1)
	assert.Equal(t, 1, narrow.Count)
	assert.Equal(t, "Pure Pizza", narrow.Results[0].Name)
}

func TestSearch_ResultsSortedByDistance(t *testing.T) {
	far := mkPlace(model.SourceGoogle, "g-far", "Distant Crust", 42.43, -71.09, 5.0, 500)
	near := mkPlace(model.SourceGoogle, "g-near", "Near Slice", 42.371, -71.031, 3.0, 10)

	reg := provider.NewRegistry()
	reg.Register(&mockProvider{name: "google", places: []model.Place{far, near}})

	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: &mockStore{}, Providers: reg, Config: testSearchConfig(),
	})

	result, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128", RadiusMiles: 10})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "Near Slice", result.Results[0].Name, "distance beats rating and reviews")
	assert.Equal(t, "Distant Crust", result.Results[1].Name)
	require.NotNil(t, result.Results[0].DistanceMiles)
	require.NotNil(t, result.Results[1].DistanceMiles)
	assert.Less(t, *result.Results[0].DistanceMiles, *result.Results[1].DistanceMiles)
}

func TestSearch_WriterPersistsProviderResults(t *testing.T) {
	stored := mkPlace(model.SourceDatabase, "db-1", "Stored Slice", 42.371, -71.031, 4.0, 50)
	live := mkPlace(model.SourceGoogle, "g-1", "Live Slice", 42.38, -71.04, 4.1, 30)

	st := &mockStore{queryResult: []model.Place{stored}}
	reg := provider.NewRegistry()
	reg.Register(&mockProvider{name: "google", places: []model.Place{live}})

	w := NewWriter(st, config.WriterConfig{Concurrency: 1, QueueSize: 8})
	e := NewEngine(EngineOptions{
		Resolver: testResolver(), Store: st, Providers: reg, Writer: w, Config: testSearchConfig(),
	})

	result, err := e.Search(context.Background(), model.SearchRequest{Zipcode: "02128", RadiusMiles: 5})
	require.NoError(t, err)
	w.Close()

	upserted := st.upsertedPlaces()
	require.Len(t, upserted, 1, "only provider fetches are persisted")
	assert.Equal(t, "g-1", upserted[0].ExternalID)

	events := st.loggedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "02128", events[0].Zipcode)
	assert.Equal(t, result.Count, events[0].ResultCount)
}
