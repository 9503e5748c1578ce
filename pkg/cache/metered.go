package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// OpStats aggregates latency for one cache operation.
type OpStats struct {
	Count   int64         `json:"count"`
	Errors  int64         `json:"errors"`
	Misses  int64         `json:"misses"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
	Average time.Duration `json:"avg_ns"`
	total   time.Duration
}

// Observer receives every measured operation, e.g. to feed Prometheus.
type Observer func(op string, elapsed time.Duration, err error)

// MeteredCache decorates a Service with per-operation latency statistics.
type MeteredCache struct {
	next     Service
	observer Observer

	mu    sync.Mutex
	stats map[string]*OpStats
}

// NewMeteredCache wraps next. observer may be nil.
func NewMeteredCache(next Service, observer Observer) *MeteredCache {
	return &MeteredCache{
		next:     next,
		observer: observer,
		stats:    make(map[string]*OpStats),
	}
}

func (m *MeteredCache) record(op string, start time.Time, err error) {
	elapsed := time.Since(start)

	m.mu.Lock()
	s, ok := m.stats[op]
	if !ok {
		s = &OpStats{Min: elapsed}
		m.stats[op] = s
	}
	s.Count++
	s.total += elapsed
	if elapsed < s.Min {
		s.Min = elapsed
	}
	if elapsed > s.Max {
		s.Max = elapsed
	}
	s.Average = s.total / time.Duration(s.Count)
	switch {
	case errors.Is(err, ErrCacheMiss):
		s.Misses++
	case err != nil:
		s.Errors++
	}
	m.mu.Unlock()

	if m.observer != nil {
		m.observer(op, elapsed, err)
	}
}

// Stats returns a snapshot of the collected statistics keyed by operation.
func (m *MeteredCache) Stats() map[string]OpStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]OpStats, len(m.stats))
	for op, s := range m.stats {
		out[op] = *s
	}
	return out
}

func (m *MeteredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) (err error) {
	defer func(start time.Time) { m.record("set", start, err) }(time.Now())
	return m.next.Set(ctx, key, value, ttl)
}

func (m *MeteredCache) Get(ctx context.Context, key string, dest interface{}) (err error) {
	defer func(start time.Time) { m.record("get", start, err) }(time.Now())
	return m.next.Get(ctx, key, dest)
}

func (m *MeteredCache) MGet(ctx context.Context, keys ...string) (_ map[string][]byte, err error) {
	defer func(start time.Time) { m.record("mget", start, err) }(time.Now())
	return m.next.MGet(ctx, keys...)
}

func (m *MeteredCache) MSet(ctx context.Context, values map[string]interface{}, ttl time.Duration) (err error) {
	defer func(start time.Time) { m.record("mset", start, err) }(time.Now())
	return m.next.MSet(ctx, values, ttl)
}

func (m *MeteredCache) Delete(ctx context.Context, keys ...string) (err error) {
	defer func(start time.Time) { m.record("delete", start, err) }(time.Now())
	return m.next.Delete(ctx, keys...)
}

func (m *MeteredCache) DeleteByPattern(ctx context.Context, pattern string) (err error) {
	defer func(start time.Time) { m.record("delete_pattern", start, err) }(time.Now())
	return m.next.DeleteByPattern(ctx, pattern)
}

// Close closes the wrapped backend when it supports it.
func (m *MeteredCache) Close() error {
	if closer, ok := m.next.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
