package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runnerd",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route, method and status code.",
	}, []string{"route", "method", "code"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "runnerd",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency. For /generate this spans the whole stream.",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"route", "method", "code"})

	inflightRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "runnerd",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Requests currently being served, by route.",
	}, []string{"route"})

	backpressureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runnerd",
		Subsystem: "http",
		Name:      "backpressure_total",
		Help:      "Generate requests answered with 429 because the engine was busy.",
	}, []string{"reason"})

	streamLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runnerd",
		Subsystem: "http",
		Name:      "stream_lines_total",
		Help:      "NDJSON lines written by /generate, by kind (token, done, error).",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, inflightRequests, backpressureTotal, streamLinesTotal)
}

// recordingWriter remembers the status code written through it.
type recordingWriter struct {
	http.ResponseWriter
	code int
}

func (w *recordingWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsMiddleware counts and times every request.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &recordingWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		// chi fills the pattern in while routing.
		route, code := routeLabel(r), strconv.Itoa(rw.code)
		requestsTotal.WithLabelValues(route, r.Method, code).Inc()
		requestDuration.WithLabelValues(route, r.Method, code).Observe(time.Since(start).Seconds())
	})
}

// inflightMiddleware must be mounted on a routed group.
func inflightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g := inflightRequests.WithLabelValues(routeLabel(r))
		g.Inc()
		defer g.Dec()
		next.ServeHTTP(w, r)
	})
}

// routeLabel is the matched chi pattern, or the raw path for unrouted requests.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure records one 429.
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}
