package search

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/pizza-search/internal/model"
)

// mockResolver resolves a fixed set of zipcodes.
type mockResolver struct {
	locations map[string]model.Location
}

func (m *mockResolver) Resolve(_ context.Context, zip string) (*model.Location, error) {
	if loc, ok := m.locations[zip]; ok {
		return &loc, nil
	}
	return nil, nil
}

// mockStore is an in-memory Store recording every write.
type mockStore struct {
	mu sync.Mutex

	queryResult []model.Place
	queryErr    error

	upserted   []model.Place
	bulkErr    error
	upsertErr  error
	events     []model.SearchEvent
	bulkBlock  chan struct{} // closed to release a blocked bulk upsert
	bulkStart  chan struct{} // receives one signal per bulk call when set
	queryCalls int
}

func (m *mockStore) QueryByRadius(context.Context, float64, float64, float64) ([]model.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.queryResult, nil
}

func (m *mockStore) UpsertPlace(_ context.Context, p model.Place) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, p)
	return nil
}

func (m *mockStore) BulkUpsertPlaces(ctx context.Context, places []model.Place) (int64, error) {
	m.mu.Lock()
	start, block, bulkErr := m.bulkStart, m.bulkBlock, m.bulkErr
	m.mu.Unlock()

	if start != nil {
		start <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if bulkErr != nil {
		return 0, bulkErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, places...)
	return int64(len(places)), nil
}

func (m *mockStore) GetPlace(context.Context, string) (*model.Place, error) {
	return nil, nil
}

func (m *mockStore) ListPlaces(context.Context, int, int) ([]model.Place, int, error) {
	return nil, 0, nil
}

func (m *mockStore) LogSearchEvent(_ context.Context, ev model.SearchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Ping(context.Context) error    { return nil }
func (m *mockStore) Close() error                  { return nil }

func (m *mockStore) upsertedPlaces() []model.Place {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Place(nil), m.upserted...)
}

func (m *mockStore) loggedEvents() []model.SearchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SearchEvent(nil), m.events...)
}

// mockProvider returns fixed places and counts calls.
type mockProvider struct {
	mu     sync.Mutex
	name   string
	places []model.Place
	err    error
	calls  int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Search(context.Context, float64, float64, float64) ([]model.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.places, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// memoryCache is a Cache over a plain map, always available.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return true
}

func (c *memoryCache) Del(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return true
}

func (c *memoryCache) FlushAll(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	return true
}

func (c *memoryCache) Available() bool { return true }
func (c *memoryCache) Close() error    { return nil }
