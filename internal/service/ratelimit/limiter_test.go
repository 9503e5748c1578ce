package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestLimiterRefills(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)}
	l := New(2, 1).WithClock(clock.now)

	assert.True(t, l.Allow("u1"))
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
	assert.True(t, l.Allow("u2"), "buckets are per key")

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.False(t, l.Allow("u1"))
	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("u1"))

	// capacity caps the refill
	clock.t = clock.t.Add(time.Hour)
	assert.True(t, l.Allow("u1"))
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
}

func TestLimiterSweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)}
	l := New(1, 1).WithClock(clock.now)
	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 0, l.Sweep(time.Minute))

	clock.t = clock.t.Add(2 * time.Minute)
	assert.Equal(t, 2, l.Sweep(time.Minute))
	assert.Zero(t, l.Len())
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	l := New(1, 0.001)
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		Middleware(l, func(c echo.Context) string { return c.QueryParam("user") }))

	do := func(q string) int {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+q, nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, do("?user=u1"))
	assert.Equal(t, http.StatusTooManyRequests, do("?user=u1"))
	assert.Equal(t, http.StatusNoContent, do("?user=u2"))
	assert.Equal(t, http.StatusNoContent, do(""), "no key means no limit")
	assert.Equal(t, http.StatusNoContent, do(""))
}
