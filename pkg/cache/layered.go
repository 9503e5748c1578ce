package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"time"
)

// failed remote invalidations are retried at most this often
const invalidationRetry = time.Second

// LayeredCache keeps a MemoryCache in front of a remote Service. Remote
// failures are reported through OnL2Error and otherwise absorbed: reads fall
// back to a miss and writes still land in memory. A remote invalidation that
// failed is retried on later reads, and until it succeeds or the stale window
// passes the matching keys are never read from Redis.
type LayeredCache struct {
	l1          *MemoryCache
	l2          Service
	l1TTL       time.Duration
	staleWindow time.Duration
	onErr       func(op string, err error)
	now         func() time.Time

	mu      sync.Mutex
	pending map[string]*staleMark // keyed by pattern
}

type staleMark struct {
	until time.Time
	retry time.Time
}

func NewLayeredCache(l2 Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{MemoryMaxSize: 1000, L1TTL: time.Minute, StaleWindow: 10 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		l1:          NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		l2:          l2,
		l1TTL:       cfg.L1TTL,
		staleWindow: cfg.StaleWindow,
		onErr:       cfg.OnL2Error,
		now:         time.Now,
		pending:     make(map[string]*staleMark),
	}
}

// degraded reports whether err is a remote failure, as opposed to success or
// a plain miss.
func (lc *LayeredCache) degraded(op string, err error) bool {
	if err == nil || errors.Is(err, ErrCacheMiss) {
		return false
	}
	if lc.onErr != nil {
		lc.onErr(op, err)
	}
	return true
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	l1TTL := lc.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := lc.l1.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	lc.degraded("set", lc.l2.Set(ctx, key, value, ttl))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if lc.l1.Get(ctx, key, dest) == nil {
		return nil
	}
	if lc.stale(ctx, key) {
		return ErrCacheMiss
	}

	var raw []byte
	err := lc.l2.Get(ctx, key, &raw)
	if lc.degraded("get", err) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	_ = lc.l1.Set(ctx, key, raw, lc.l1TTL)
	return decode(raw, dest)
}

func (lc *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out, _ := lc.l1.MGet(ctx, keys...)
	if len(out) == len(keys) {
		return out, nil
	}

	missing := make([]string, 0, len(keys)-len(out))
	for _, k := range keys {
		if _, ok := out[k]; !ok && !lc.stale(ctx, k) {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	remote, err := lc.l2.MGet(ctx, missing...)
	if lc.degraded("mget", err) {
		return out, nil
	}
	for k, raw := range remote {
		out[k] = raw
		_ = lc.l1.Set(ctx, k, raw, lc.l1TTL)
	}
	return out, nil
}

func (lc *LayeredCache) MSet(ctx context.Context, values map[string]interface{}, ttl time.Duration) error {
	l1TTL := lc.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := lc.l1.MSet(ctx, values, l1TTL); err != nil {
		return err
	}
	lc.degraded("mset", lc.l2.MSet(ctx, values, ttl))
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	if lc.degraded("delete", lc.l2.Delete(ctx, keys...)) {
		for _, k := range keys {
			lc.markStale(k)
		}
	}
	return nil
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	if err := lc.l1.DeleteByPattern(ctx, pattern); err != nil {
		return err
	}
	if lc.degraded("delete_pattern", lc.l2.DeleteByPattern(ctx, pattern)) {
		lc.markStale(pattern)
	}
	return nil
}

func (lc *LayeredCache) markStale(pattern string) {
	now := lc.now()
	lc.mu.Lock()
	lc.pending[pattern] = &staleMark{until: now.Add(lc.staleWindow), retry: now.Add(invalidationRetry)}
	lc.mu.Unlock()
}

// stale retries due invalidations and reports whether key still matches one
// that has not gone through.
func (lc *LayeredCache) stale(ctx context.Context, key string) bool {
	lc.mu.Lock()
	if len(lc.pending) == 0 {
		lc.mu.Unlock()
		return false
	}
	now := lc.now()
	var due []string
	for pattern, m := range lc.pending {
		switch {
		case !now.Before(m.until):
			delete(lc.pending, pattern)
		case !now.Before(m.retry):
			m.retry = now.Add(invalidationRetry)
			due = append(due, pattern)
		}
	}
	lc.mu.Unlock()

	for _, pattern := range due {
		if !lc.degraded("delete_pattern", lc.l2.DeleteByPattern(ctx, pattern)) {
			lc.mu.Lock()
			delete(lc.pending, pattern)
			lc.mu.Unlock()
		}
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	for pattern := range lc.pending {
		if ok, _ := path.Match(pattern, key); ok {
			return true
		}
	}
	return false
}

// PendingInvalidations counts remote invalidations still waiting for Redis.
func (lc *LayeredCache) PendingInvalidations() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return len(lc.pending)
}

func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	if c, ok := lc.l2.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
