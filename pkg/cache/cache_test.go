package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	UserID string  `json:"user_id"`
	Ratio  float64 `json:"ratio"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "profile:u1", profile{UserID: "u1", Ratio: 0.5}, time.Minute))

	var got profile
	require.NoError(t, mc.Get(ctx, "profile:u1", &got))
	assert.Equal(t, profile{UserID: "u1", Ratio: 0.5}, got)

	var raw string
	require.NoError(t, mc.Set(ctx, "plain", "value", 0))
	require.NoError(t, mc.Get(ctx, "plain", &raw))
	assert.Equal(t, "value", raw)

	err := mc.Get(ctx, "absent", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "short", 1, 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	var n int
	assert.ErrorIs(t, mc.Get(ctx, "short", &n), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheSweepDropsExpired(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	now := time.Now()
	mc.now = func() time.Time { return now }
	require.NoError(t, mc.Set(ctx, "old", 1, time.Second))
	require.NoError(t, mc.Set(ctx, "new", 2, time.Hour))

	now = now.Add(time.Minute)
	mc.dropExpired()
	assert.Equal(t, 1, mc.Len())

	var v int
	require.NoError(t, mc.Get(ctx, "new", &v))
	assert.Equal(t, 2, v)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	for i, key := range []string{"history:u1:30d", "history:u1:24h", "history:u2:30d"} {
		require.NoError(t, mc.Set(ctx, key, i, time.Minute))
	}

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern(GenerateKey("history", "u1")+":")))

	var v int
	assert.ErrorIs(t, mc.Get(ctx, "history:u1:30d", &v), ErrCacheMiss)
	assert.ErrorIs(t, mc.Get(ctx, "history:u1:24h", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "history:u2:30d", &v))
	assert.Equal(t, 2, v)

	assert.Error(t, mc.DeleteByPattern(ctx, "["))
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 2, mc.Len())
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "history:u1", GenerateKey("history", "u1"))
	assert.Equal(t, "history:u1:tx:30", GenerateKeyWithParams("history:u1", "tx", 30))
	assert.Equal(t, "history:u1", GenerateKeyWithParams("history:u1"))
}

func TestMemoizeLoadsOnce(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	calls := 0
	load := func(context.Context) (profile, error) {
		calls++
		return profile{UserID: "u9", Ratio: 1.25}, nil
	}

	first, err := Memoize(ctx, mc, "profile:u9", time.Minute, load)
	require.NoError(t, err)
	second, err := Memoize(ctx, mc, "profile:u9", time.Minute, load)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

type brokenCache struct{ Service }

func (brokenCache) Get(context.Context, string, interface{}) error {
	return errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func TestMemoizeFallsThroughOnBackendFailure(t *testing.T) {
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Memoize[int](context.Background(), brokenCache{}, "k", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 3, calls)
}

func TestMemoizeDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_, err := Memoize(ctx, mc, "k", time.Minute, func(context.Context) (int, error) {
		return 0, errors.New("ledger down")
	})
	require.Error(t, err)

	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestLayeredCacheDegradesWhenRedisFails(t *testing.T) {
	ctx := context.Background()

	var failures []string
	lc := NewLayeredCache(brokenL2{}, WithL2ErrorHandler(func(op string, _ error) {
		failures = append(failures, op)
	}))
	defer lc.Close()

	require.NoError(t, lc.Set(ctx, "k", profile{UserID: "x"}, time.Minute))

	var got profile
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "x", got.UserID)

	assert.ErrorIs(t, lc.Get(ctx, "missing", &got), ErrCacheMiss)
	assert.Contains(t, failures, "set")
	assert.Contains(t, failures, "get")
}

type brokenL2 struct{ brokenCache }

func (brokenL2) Delete(context.Context, ...string) error { return errors.New("down") }

func (brokenL2) DeleteByPattern(context.Context, string) error { return errors.New("down") }

func (brokenCache) MGet(context.Context, ...string) (map[string][]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) MSet(context.Context, map[string]interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func TestMemoryCacheMGetSkipsMissesAndExpired(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	require.NoError(t, mc.MSet(ctx, map[string]interface{}{
		"a": profile{UserID: "a"},
		"b": "plain",
	}, time.Minute))
	require.NoError(t, mc.Set(ctx, "old", "x", time.Second))

	now := time.Now()
	mc.now = func() time.Time { return now.Add(2 * time.Second) }

	got, err := mc.MGet(ctx, "a", "b", "old", "none")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "plain", string(got["b"]))
	assert.JSONEq(t, `{"user_id":"a","ratio":0}`, string(got["a"]))
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheMSetRejectsUnencodable(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	err := mc.MSet(ctx, map[string]interface{}{"ok": 1, "bad": make(chan int)}, time.Minute)
	require.Error(t, err)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoizeManyLoadsOnlyMisses(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "u1", profile{UserID: "u1", Ratio: 1}, time.Minute))

	var asked []string
	load := func(_ context.Context, missing []string) (map[string]profile, error) {
		asked = append(asked, missing...)
		out := map[string]profile{}
		for _, k := range missing {
			if k != "ghost" {
				out[k] = profile{UserID: k}
			}
		}
		return out, nil
	}

	got, err := MemoizeMany(ctx, mc, []string{"u1", "u2", "ghost"}, time.Minute, load)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u2", "ghost"}, asked)
	assert.Len(t, got, 2)
	assert.Equal(t, 1.0, got["u1"].Ratio)

	asked = nil
	_, err = MemoizeMany(ctx, mc, []string{"u1", "u2"}, time.Minute, load)
	require.NoError(t, err)
	assert.Empty(t, asked)
}

func TestMemoizeManyFallsThroughOnBackendFailure(t *testing.T) {
	got, err := MemoizeMany(context.Background(), brokenCache{}, []string{"a", "b"}, time.Minute,
		func(_ context.Context, missing []string) (map[string]int, error) {
			return map[string]int{"a": 1, "b": 2}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)
}

func TestLayeredCacheMGetPromotesAndAbsorbsFailures(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	defer remote.Close()
	require.NoError(t, remote.Set(ctx, "r", "remote", time.Minute))

	lc := NewLayeredCache(remote)
	defer lc.Close()
	require.NoError(t, lc.l1.Set(ctx, "l", "local", time.Minute))

	got, err := lc.MGet(ctx, "l", "r", "none")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"l": []byte("local"), "r": []byte("remote")}, got)
	assert.Equal(t, 2, lc.l1.Len())

	var failures []string
	broken := NewLayeredCache(brokenL2{}, WithL2ErrorHandler(func(op string, _ error) {
		failures = append(failures, op)
	}))
	defer broken.Close()

	require.NoError(t, broken.MSet(ctx, map[string]interface{}{"k": "v"}, time.Minute))
	got, err = broken.MGet(ctx, "k", "other")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k": []byte("v")}, got)
	assert.Equal(t, []string{"mset", "mget"}, failures)
}

func TestMeteredCacheStats(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	var observed []string
	metered := NewMeteredCache(mc, func(op string, _ time.Duration, _ error) {
		observed = append(observed, op)
	})
	defer metered.Close()

	require.NoError(t, metered.Set(ctx, "k", 1, time.Minute))
	var v int
	require.NoError(t, metered.Get(ctx, "k", &v))
	assert.ErrorIs(t, metered.Get(ctx, "nope", &v), ErrCacheMiss)

	stats := metered.Stats()
	require.Contains(t, stats, "get")
	assert.EqualValues(t, 2, stats["get"].Count)
	assert.EqualValues(t, 1, stats["get"].Misses)
	assert.EqualValues(t, 1, stats["set"].Count)
	assert.LessOrEqual(t, stats["get"].Min, stats["get"].Max)
	assert.Equal(t, []string{"set", "get", "get"}, observed)
}

func TestLayeredCachePromotesRemoteHits(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredL1TTL(time.Second))
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "history:u1:user", profile{UserID: "u1", Ratio: 2}, time.Hour))

	var got profile
	require.NoError(t, lc.Get(ctx, "history:u1:user", &got))
	assert.Equal(t, 2.0, got.Ratio)
	assert.Equal(t, 1, lc.l1.Len())

	require.NoError(t, lc.DeleteByPattern(ctx, "history:u1:*"))
	assert.ErrorIs(t, lc.Get(ctx, "history:u1:user", &got), ErrCacheMiss)
	assert.Equal(t, 0, remote.Len())
}

type flakyRemote struct {
	*MemoryCache
	down bool
}

func (f *flakyRemote) DeleteByPattern(ctx context.Context, pattern string) error {
	if f.down {
		return errors.New("down")
	}
	return f.MemoryCache.DeleteByPattern(ctx, pattern)
}

func TestLayeredCacheShadowsRemoteAfterFailedInvalidation(t *testing.T) {
	ctx := context.Background()
	remote := &flakyRemote{MemoryCache: NewMemoryCache()}
	defer remote.Close()

	lc := NewLayeredCache(remote, WithStaleWindow(time.Minute))
	defer lc.Close()
	now := time.Now()
	lc.now = func() time.Time { return now }

	require.NoError(t, lc.Set(ctx, "history:u1:user", "old", time.Hour))
	remote.down = true
	require.NoError(t, lc.DeleteByPattern(ctx, "history:u1:*"))
	assert.Equal(t, 1, lc.PendingInvalidations())

	var got string
	assert.ErrorIs(t, lc.Get(ctx, "history:u1:user", &got), ErrCacheMiss, "invalidated value must not come back from redis")
	hits, err := lc.MGet(ctx, "history:u1:user")
	require.NoError(t, err)
	assert.Empty(t, hits)

	remote.down = false
	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, lc.Get(ctx, "history:u1:user", &got), ErrCacheMiss)
	assert.Equal(t, 0, lc.PendingInvalidations())
	assert.ErrorIs(t, remote.Get(ctx, "history:u1:user", &got), ErrCacheMiss, "retried invalidation reached redis")
}

func TestLayeredCacheStaleWindowExpires(t *testing.T) {
	ctx := context.Background()
	remote := &flakyRemote{MemoryCache: NewMemoryCache(), down: true}
	defer remote.Close()
	require.NoError(t, remote.MemoryCache.Set(ctx, "history:u2:user", "kept", time.Hour))

	lc := NewLayeredCache(remote, WithStaleWindow(time.Minute))
	defer lc.Close()
	now := time.Now()
	lc.now = func() time.Time { return now }

	require.NoError(t, lc.DeleteByPattern(ctx, "history:u2:*"))
	var got string
	assert.ErrorIs(t, lc.Get(ctx, "history:u2:user", &got), ErrCacheMiss)

	now = now.Add(2 * time.Minute)
	require.NoError(t, lc.Get(ctx, "history:u2:user", &got))
	assert.Equal(t, "kept", got)
	assert.Equal(t, 0, lc.PendingInvalidations())
}
