package metrics

import (
	"errors"
	"sync"
	"time"

	"RiskGate/pkg/cache"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	CacheLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskgate",
			Subsystem: "cache",
			Name:      "op_latency_seconds",
			Help:      "Latency of cache operations",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"op"},
	)

	CacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Subsystem: "cache",
			Name:      "results_total",
			Help:      "Cache operation results (ok, miss, error)",
		},
		[]string{"op", "result"},
	)

	CacheRemoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Subsystem: "cache",
			Name:      "remote_errors_total",
			Help:      "Redis errors absorbed by the layered cache",
		},
		[]string{"op"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(CacheLatency, CacheResults, CacheRemoteErrors)
	})
}

// CacheObserver feeds MeteredCache measurements into Prometheus.
func CacheObserver() cache.Observer {
	Register()
	return func(op string, elapsed time.Duration, err error) {
		CacheLatency.WithLabelValues(op).Observe(elapsed.Seconds())
		result := "ok"
		switch {
		case errors.Is(err, cache.ErrCacheMiss):
			result = "miss"
		case err != nil:
			result = "error"
		}
		CacheResults.WithLabelValues(op, result).Inc()
	}
}

// RemoteErrorCounter counts Redis failures the layered cache absorbed. A
// "delete_pattern" error means invalidated history may still sit in Redis.
func RemoteErrorCounter() func(op string) {
	Register()
	return func(op string) { CacheRemoteErrors.WithLabelValues(op).Inc() }
}
