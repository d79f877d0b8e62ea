package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// probeInterval is the minimum spacing between reconnect probes while the
// backend is marked down.
const probeInterval = 5 * time.Second

// Redis implements Cache on a Redis backend via go-redis.
type Redis struct {
	client     *redis.Client
	avail      *Availability
	defaultTTL time.Duration
	lastProbe  atomic.Int64 // unix nanos of the last reconnect probe
}

// RedisOptions configures the Redis cache adapter.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	DefaultTTL time.Duration
}

// NewRedis creates the Redis cache adapter. A backend that is down at
// startup is tolerated: the adapter starts unavailable and probes for
// recovery on subsequent use. The availability flag is shared so the engine
// can observe backend health without touching the client.
func NewRedis(ctx context.Context, opts RedisOptions, avail *Availability) *Redis {
	r := &Redis{
		avail:      avail,
		defaultTTL: opts.DefaultTTL,
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			avail.MarkUp()
			return nil
		},
	})

	if err := r.client.Ping(ctx).Err(); err != nil {
		zap.L().Warn("cache: redis unavailable at startup", zap.Error(err))
		avail.MarkDown()
	} else {
		avail.MarkUp()
	}

	return r
}

// Available implements Cache.
func (r *Redis) Available() bool { return r.avail.Up() }

// Close implements Cache.
func (r *Redis) Close() error { return r.client.Close() }

// Get implements Cache. While the backend is down it returns a miss and, at
// most once per probe interval, pings in the background to detect recovery.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	if !r.avail.Up() {
		r.maybeProbe(ctx)
		return nil, false
	}

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.markFailure("get", err)
		}
		return nil, false
	}
	return data, true
}

// Set implements Cache. A zero ttl uses the configured default.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !r.avail.Up() {
		r.maybeProbe(ctx)
		return false
	}
	if ttl == 0 {
		ttl = r.defaultTTL
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.markFailure("set", err)
		return false
	}
	return true
}

// Del implements Cache.
func (r *Redis) Del(ctx context.Context, key string) bool {
	if !r.avail.Up() {
		return false
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.markFailure("del", err)
		return false
	}
	return true
}

// FlushAll implements Cache.
func (r *Redis) FlushAll(ctx context.Context) bool {
	if !r.avail.Up() {
		return false
	}
	if err := r.client.FlushAll(ctx).Err(); err != nil {
		r.markFailure("flushall", err)
		return false
	}
	zap.L().Info("cache: flushed")
	return true
}

// markFailure logs a command failure and flips the availability flag. The
// next use after the probe interval will attempt recovery.
func (r *Redis) markFailure(op string, err error) {
	zap.L().Error("cache: redis "+op+" failed", zap.Error(err))
	r.avail.MarkDown()
}

// maybeProbe pings the backend in the background, rate-limited so a down
// backend costs each request nothing beyond an atomic read.
func (r *Redis) maybeProbe(ctx context.Context) {
	now := time.Now().UnixNano()
	last := r.lastProbe.Load()
	if now-last < int64(probeInterval) || !r.lastProbe.CompareAndSwap(last, now) {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := r.client.Ping(pingCtx).Err(); err == nil {
			zap.L().Info("cache: redis recovered")
			r.avail.MarkUp()
		}
	}()
}
