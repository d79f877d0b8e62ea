// Package search orchestrates a zipcode search end to end: resolve the
// location, consult the cache, gather candidates from the local store and
// the live providers, deduplicate, rank, and hand the uncached tail to the
// background writer.
package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pizza-search/internal/cache"
	"github.com/sells-group/pizza-search/internal/config"
	"github.com/sells-group/pizza-search/internal/dedupe"
	"github.com/sells-group/pizza-search/internal/model"
	"github.com/sells-group/pizza-search/internal/provider"
	"github.com/sells-group/pizza-search/internal/rank"
	"github.com/sells-group/pizza-search/internal/resilience"
	"github.com/sells-group/pizza-search/internal/store"
	"github.com/sells-group/pizza-search/internal/zipcode"
)

// Validation errors. These surface to the caller as client errors; every
// downstream failure degrades the result instead.
var (
	ErrInvalidLocation = eris.New("search: unknown or invalid zipcode")
	ErrInvalidRadius   = eris.New("search: radius out of range")
)

// Engine runs searches. All collaborators are injected; the zero value is
// not usable.
type Engine struct {
	resolver  zipcode.Resolver
	store     store.Store
	providers *provider.Registry
	cache     cache.Cache
	writer    *Writer
	clusterer dedupe.Strategy
	cfg       config.SearchConfig

	// One breaker per provider, keyed by name. Breakers isolate a
	// misbehaving provider without affecting the others.
	breakers map[string]*resilience.CircuitBreaker
}

// EngineOptions carries the engine's collaborators. Resolver, Store and
// Providers are required; Cache defaults to a no-op, Clusterer to the
// greedy strategy, and a nil Writer disables the async persistence tail.
type EngineOptions struct {
	Resolver  zipcode.Resolver
	Store     store.Store
	Providers *provider.Registry
	Cache     cache.Cache
	Writer    *Writer
	Clusterer dedupe.Strategy
	Config    config.SearchConfig
}

// NewEngine creates a search engine.
func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{
		resolver:  opts.Resolver,
		store:     opts.Store,
		providers: opts.Providers,
		cache:     opts.Cache,
		writer:    opts.Writer,
		clusterer: opts.Clusterer,
		cfg:       opts.Config,
		breakers:  make(map[string]*resilience.CircuitBreaker),
	}
	if e.providers == nil {
		e.providers = provider.NewRegistry()
	}
	if e.cache == nil {
		e.cache = cache.NewNoop()
	}
	if e.clusterer == nil {
		e.clusterer = dedupe.NewGreedy()
	}
	if e.cfg.DefaultRadiusMiles <= 0 {
		e.cfg.DefaultRadiusMiles = 10
	}
	if e.cfg.MaxRadiusMiles <= 0 {
		e.cfg.MaxRadiusMiles = 50
	}
	for _, name := range e.providers.Names() {
		e.breakers[name] = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return e
}

// Search runs one search request through the full pipeline.
func (e *Engine) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResult, error) {
	start := time.Now()

	radius := req.RadiusMiles
	if radius == 0 {
		radius = e.cfg.DefaultRadiusMiles
	}
	// Sub-mile radii are rejected, not rounded up.
	if radius < 1 || radius > e.cfg.MaxRadiusMiles {
		return nil, ErrInvalidRadius
	}

	if !zipcode.IsValid(req.Zipcode) {
		return nil, ErrInvalidLocation
	}
	loc, err := e.resolver.Resolve(ctx, req.Zipcode)
	if err != nil {
		return nil, eris.Wrap(err, "search: resolve zipcode")
	}
	if loc == nil {
		return nil, ErrInvalidLocation
	}

	key := cache.SearchKey(req.Zipcode, radius)
	if data, ok := e.cache.Get(ctx, key); ok {
		var cached model.SearchResult
		if err := json.Unmarshal(data, &cached); err == nil {
			cached.Cached = true
			cached.Results = applyFilter(cached.Results, req.WantsNonDedicated())
			cached.Count = len(cached.Results)
			cached.ResponseTimeMs = time.Since(start).Milliseconds()
			zap.L().Debug("search: cache hit", zap.String("key", key))
			return &cached, nil
		}
		// Corrupt entry: drop it and fall through to a live search.
		zap.L().Warn("search: dropping undecodable cache entry", zap.String("key", key))
		e.cache.Del(ctx, key)
	}

	local, fetched, sources, degraded := e.gather(ctx, loc, radius)

	// Local rows lead so stored records win merge conflicts.
	combined := make([]model.Place, 0, len(local)+len(fetched))
	combined = append(combined, local...)
	combined = append(combined, fetched...)

	deduped := e.clusterer.Deduplicate(combined)
	results := rank.Enrich(deduped.Survivors, model.Coordinates{Lat: loc.Lat, Lng: loc.Lng})
	rank.Sort(results)

	result := &model.SearchResult{
		Success:     true,
		Location:    *loc,
		RadiusMiles: radius,
		Results:     results,
		Count:       len(results),
		Sources:     sources,
		Degraded:    degraded,
	}

	// The cached copy holds the unfiltered list so every filter variant can
	// be served from one entry.
	if payload, err := json.Marshal(result); err == nil {
		e.cache.Set(ctx, key, payload, time.Duration(e.cfg.CacheTTLSecs)*time.Second)
	}

	if e.writer != nil {
		e.writer.Enqueue(Job{
			Places: fetched,
			Event: &model.SearchEvent{
				Zipcode:        req.Zipcode,
				Lat:            loc.Lat,
				Lng:            loc.Lng,
				RadiusMiles:    radius,
				ResultCount:    len(results),
				ResponseTimeMs: time.Since(start).Milliseconds(),
			},
		})
	}

	result.Results = applyFilter(result.Results, req.WantsNonDedicated())
	result.Count = len(result.Results)
	result.ResponseTimeMs = time.Since(start).Milliseconds()

	zap.L().Info("search: complete",
		zap.String("zipcode", req.Zipcode),
		zap.Float64("radius_miles", radius),
		zap.Int("results", result.Count),
		zap.Bool("degraded", result.Degraded),
		zap.Int64("elapsed_ms", result.ResponseTimeMs),
	)
	return result, nil
}

// gather runs the local store query and the provider fan-out concurrently.
// Nothing here fails the search: a store failure flips the degraded flag and
// a provider failure contributes an empty slice.
func (e *Engine) gather(ctx context.Context, loc *model.Location, radius float64) (local, fetched []model.Place, sources map[string]int, degraded bool) {
	providers := e.providers.All()
	perProvider := make([][]model.Place, len(providers))

	var g errgroup.Group
	g.Go(func() error {
		places, err := e.store.QueryByRadius(ctx, loc.Lat, loc.Lng, radius)
		if err != nil {
			zap.L().Error("search: local store query failed", zap.Error(err))
			degraded = true
			return nil
		}
		local = places
		return nil
	})

	for i, p := range providers {
		g.Go(func() error {
			pctx := ctx
			if e.cfg.ProviderTimeoutSecs > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.ProviderTimeoutSecs)*time.Second)
				defer cancel()
			}

			places, err := resilience.ExecuteVal(pctx, e.breakers[p.Name()], func(ctx context.Context) ([]model.Place, error) {
				return p.Search(ctx, loc.Lat, loc.Lng, radius)
			})
			if err != nil {
				zap.L().Warn("search: provider failed",
					zap.String("provider", p.Name()),
					zap.Error(err),
				)
				return nil
			}
			perProvider[i] = places
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors

	sources = map[string]int{string(model.SourceDatabase): len(local)}
	for i, p := range providers {
		sources[p.Name()] = len(perProvider[i])
		fetched = append(fetched, perProvider[i]...)
	}
	return local, fetched, sources, degraded
}

// applyFilter drops non-dedicated pizzerias unless the request includes them.
func applyFilter(places []model.Place, includeNonDedicated bool) []model.Place {
	if includeNonDedicated {
		return places
	}
	filtered := make([]model.Place, 0, len(places))
	for _, p := range places {
		if p.IsDedicatedPizzeria {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
