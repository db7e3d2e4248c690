package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = []float64{5, 25, 100, 500, 1000, 5000}

var httpRequestsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      requestsCollectorName,
		Help:      "Number of HTTP requests partitioned by status code, method and route.",
	}, []string{"code", "method", "path"})

var httpLatencyMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      latencyCollectorName,
		Help:      "Time spent on the request partitioned by status code, method and route.",
		Buckets:   latencyBuckets,
	}, []string{"code", "method", "path"})

// Middleware records request counts and latency by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route := rctx.RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			code := strconv.Itoa(ww.Status())
			httpRequestsMetric.WithLabelValues(code, r.Method, route).Inc()
			httpLatencyMetric.WithLabelValues(code, r.Method, route).Observe(float64(time.Since(start).Milliseconds()))
		}
	}
	return http.HandlerFunc(fn)
}
