package middleware

import (
	"errors"
	"strconv"
	"sync"
	"time"

	applogger "RiskGate/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpCollectors struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var (
	httpMetrics     httpCollectors
	httpMetricsOnce sync.Once
)

func registerHTTPMetrics() {
	httpMetrics = httpCollectors{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "riskgate_http_requests_total",
			Help: "HTTP requests by route template, method and status.",
		}, []string{"route", "method", "status"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riskgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route template and status class.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2.5, 9),
		}, []string{"route", "method", "class"}),
		inFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "riskgate_http_in_flight_requests",
			Help: "Requests currently being served.",
		}),
	}
}

// Metrics labels requests by route template, so /pipelines/:id is one series,
// and warns about requests slower than slow. slow <= 0 disables the warning.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	httpMetricsOnce.Do(registerHTTPMetrics)
	m := httpMetrics

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			start := time.Now()
			err := next(c)
			took := time.Since(start)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(route, method, strconv.Itoa(status/100)+"xx").Observe(took.Seconds())

			if l != nil && slow > 0 && took >= slow {
				l.Warn("slow http request",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", status),
					applogger.Duration("took", took))
			}
			return err
		}
	}
}
