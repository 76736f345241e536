package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealership_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealership_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	guardDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealership_guard_decisions_total",
		Help: "Route guard decisions by outcome and rejection reason.",
	}, []string{"state", "reason"})

	loginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealership_login_attempts_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	validationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealership_validation_violations_total",
		Help: "Validation violations by entity kind and field.",
	}, []string{"kind", "field"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, guardDecisions, loginAttempts, validationFailures)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// OpsRouter serves metrics and liveness. It is meant for a separate listener
// so the API surface stays limited to its own routes.
func OpsRouter() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", MetricsHandler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// metricsMiddleware records request metrics labelled by route pattern.
// Requests that never reach the router, such as guard rejections, are
// labelled "unrouted".
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		route := "unrouted"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, route, status).Inc()
		requestDuration.WithLabelValues(r.Method, route).Observe(dur)
	})
}
