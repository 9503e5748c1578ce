package cache

import (
	"container/list"
	"context"
	"fmt"
	"path"
	"sync"
	"time"
)

// entries written without a TTL still age out eventually
const maxMemoryTTL = 24 * time.Hour

type memEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// MemoryCache is a size-bounded LRU. It backs single-node deployments and is
// the L1 of LayeredCache.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	now     func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{MaxSize: 1000, CleanupInterval: 5 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}

	mc := &MemoryCache{
		items:   make(map[string]*list.Element, cfg.MaxSize),
		order:   list.New(),
		maxSize: cfg.MaxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go mc.sweep(cfg.CleanupInterval)
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if ttl <= 0 || ttl > maxMemoryTTL {
		ttl = maxMemoryTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	expires := mc.now().Add(ttl)
	if el, ok := mc.items[key]; ok {
		e := el.Value.(*memEntry)
		e.value, e.expires = data, expires
		mc.order.MoveToFront(el)
		return nil
	}

	for mc.order.Len() >= mc.maxSize {
		mc.remove(mc.order.Back())
	}
	mc.items[key] = mc.order.PushFront(&memEntry{key: key, value: data, expires: expires})
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.items[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	e := el.Value.(*memEntry)
	if !mc.now().Before(e.expires) {
		mc.remove(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	data := e.value
	mc.mu.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) MGet(_ context.Context, keys ...string) (map[string][]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		el, ok := mc.items[key]
		if !ok {
			continue
		}
		e := el.Value.(*memEntry)
		if !now.Before(e.expires) {
			mc.remove(el)
			continue
		}
		mc.order.MoveToFront(el)
		out[key] = e.value
	}
	return out, nil
}

// MSet encodes every value before storing any, so a bad value leaves the
// cache untouched.
func (mc *MemoryCache) MSet(ctx context.Context, values map[string]interface{}, ttl time.Duration) error {
	encoded := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := encode(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		encoded[key] = data
	}
	for key, data := range encoded {
		if err := mc.Set(ctx, key, data, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok {
			mc.remove(el)
		}
	}
	return nil
}

// DeleteByPattern drops every key matching a glob such as "history:u1:*".
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, el := range mc.items {
		if ok, _ := path.Match(pattern, key); ok {
			mc.remove(el)
		}
	}
	return nil
}

// Len counts entries, including expired ones not swept yet.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.stop) })
	return nil
}

// remove unlinks el. Caller holds mu.
func (mc *MemoryCache) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(mc.items, el.Value.(*memEntry).key)
	mc.order.Remove(el)
}

func (mc *MemoryCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-ticker.C:
			mc.dropExpired()
		}
	}
}

func (mc *MemoryCache) dropExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	for el := mc.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*memEntry).expires) {
			mc.remove(el)
		}
		el = prev
	}
}
