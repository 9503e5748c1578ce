package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the read-through store behind the risk history. Values are JSON
// except plain strings, which are stored as-is. A miss is ErrCacheMiss; any
// other error means the backend is down and the caller should read the source
// of truth instead.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	// MGet returns the raw bytes of the keys that hit. Misses are absent
	// from the map and are not an error.
	MGet(ctx context.Context, keys ...string) (map[string][]byte, error)
	MSet(ctx context.Context, values map[string]interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// Memoize returns the cached value for key, or calls load and caches its
// result for ttl. Load errors are returned and never cached. Backend errors
// are swallowed, so a broken cache costs a load per call and nothing else.
func Memoize[T any](ctx context.Context, c Service, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if c != nil {
		var hit T
		if c.Get(ctx, key, &hit) == nil {
			return hit, nil
		}
	}

	v, err := load(ctx)
	if err != nil || c == nil {
		return v, err
	}
	_ = c.Set(ctx, key, v, ttl)
	return v, nil
}

// MemoizeMany is the batch form of Memoize. load receives only the keys that
// missed and may return fewer values than asked for; absent keys are left out
// of the result.
func MemoizeMany[T any](ctx context.Context, c Service, keys []string, ttl time.Duration, load func(ctx context.Context, missing []string) (map[string]T, error)) (map[string]T, error) {
	out := make(map[string]T, len(keys))
	missing := keys
	if c != nil {
		if hits, err := c.MGet(ctx, keys...); err == nil {
			missing = missing[:0:0]
			for _, k := range keys {
				raw, ok := hits[k]
				if !ok {
					missing = append(missing, k)
					continue
				}
				var v T
				if decode(raw, &v) != nil {
					missing = append(missing, k)
					continue
				}
				out[k] = v
			}
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := load(ctx, missing)
	if err != nil {
		return nil, err
	}
	fill := make(map[string]interface{}, len(loaded))
	for k, v := range loaded {
		out[k] = v
		fill[k] = v
	}
	if c != nil && len(fill) > 0 {
		_ = c.MSet(ctx, fill, ttl)
	}
	return out, nil
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, dest)
}
