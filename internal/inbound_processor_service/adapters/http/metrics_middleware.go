package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Route label for requests no admin route matched. Raw paths would carry
// thread ids and addresses into the label set.
const unmatchedRoute = "unmatched"

const (
	authMissingHeader = "missing_header"
	authBadFormat     = "bad_format"
	authInvalidToken  = "invalid_token"
)

var (
	adminRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Admin API requests by route pattern, method and status class.",
		},
		[]string{"route", "method", "status_class"},
	)

	adminRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inbound_processor",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin API request latency by route pattern.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"route"},
	)

	adminAuthRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Subsystem: "admin",
			Name:      "auth_rejections_total",
			Help:      "Admin API calls refused by the bearer token check.",
		},
		[]string{"reason"},
	)
)

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// PrometheusMetricsMiddleware records admin API traffic per chi route pattern,
// e.g. "/api/v1/blocking-rules/{address}".
func PrometheusMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		adminRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		adminRequestsTotal.WithLabelValues(route, r.Method, statusClass(status)).Inc()
	})
}
