package main

import (
	"context"
	"time"

	"github.com/sells-group/pizza-search/internal/cache"
	"github.com/sells-group/pizza-search/internal/dedupe"
	"github.com/sells-group/pizza-search/internal/provider"
	"github.com/sells-group/pizza-search/internal/search"
	"github.com/sells-group/pizza-search/internal/store"
	"github.com/sells-group/pizza-search/internal/zipcode"
)

// appEnv bundles the wired application components with their teardown.
type appEnv struct {
	Store  store.Store
	Cache  cache.Cache
	Writer *search.Writer
	Engine *search.Engine
}

// initEngine wires the store, cache, providers and engine from config.
func initEngine(ctx context.Context) (*appEnv, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	var c cache.Cache = cache.NewNoop()
	if cfg.Redis.Enabled {
		c = cache.NewRedis(ctx, cache.RedisOptions{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			DefaultTTL: time.Duration(cfg.Search.CacheTTLSecs) * time.Second,
		}, cache.NewAvailability(false))
	}

	reg := provider.NewRegistry()
	if cfg.Google.Enabled() {
		reg.Register(provider.NewGooglePlaces(provider.GoogleOptions{
			Key:     cfg.Google.Key,
			BaseURL: cfg.Google.BaseURL,
		}))
	}
	if cfg.Yelp.Enabled() {
		reg.Register(provider.NewYelp(provider.YelpOptions{
			Key:     cfg.Yelp.Key,
			BaseURL: cfg.Yelp.BaseURL,
		}))
	}

	w := search.NewWriter(st, cfg.Writer)

	engine := search.NewEngine(search.EngineOptions{
		Resolver:  zipcode.NewStaticResolver(),
		Store:     st,
		Providers: reg,
		Cache:     c,
		Writer:    w,
		Clusterer: dedupe.NewGreedy(),
		Config:    cfg.Search,
	})

	return &appEnv{Store: st, Cache: c, Writer: w, Engine: engine}, nil
}

// Close drains the writer before releasing connections so queued
// persistence work lands.
func (e *appEnv) Close() {
	e.Writer.Close()
	_ = e.Cache.Close()
	_ = e.Store.Close()
}
