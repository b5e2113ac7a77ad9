// Package metrics provides Prometheus instrumentation for the analysis
// pipeline and the HTTP layer in front of it.
//
// Metrics exposed:
//
//	acousticid_http_requests_total            counter: requests by method/route/status
//	acousticid_http_request_duration_seconds  histogram: latency by method/route
//	acousticid_analyses_total                 counter: analyses by outcome
//	acousticid_step_duration_seconds          histogram: pipeline step latency
//	acousticid_candidates_returned            histogram: candidates per successful analysis
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline step labels.
const (
	StepIntake      = "intake"
	StepFingerprint = "fingerprint"
	StepLookup      = "lookup"
)

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "acousticid_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "acousticid_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// AnalysesTotal counts finished analyses. outcome is "ok" or an error kind.
var AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "acousticid_analyses_total",
	Help: "Analyses by outcome.",
}, []string{"outcome"})

// StepDuration covers fpcalc runs and lookup round trips, which dominate
// request latency.
var StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "acousticid_step_duration_seconds",
	Help:    "Pipeline step latency in seconds.",
	Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
}, []string{"step"})

var CandidatesReturned = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "acousticid_candidates_returned",
	Help:    "Track candidates returned per successful analysis.",
	Buckets: []float64{0, 1, 2, 5, 10, 20},
})

func ObserveStep(step string, start time.Time) {
	StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. Routes are labelled with
// their chi pattern so path parameters do not blow up cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := routeLabel(r)
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
