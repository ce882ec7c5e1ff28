package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"runnerd/pkg/types"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	return mrr.Body.Bytes()
}

// TestMetricsMiddlewareUsesRoutePattern ensures requests are labeled by the
// chi route pattern instead of the raw URL path.
func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/models/abc", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
	got := testutil.ToFloat64(requestsTotal.WithLabelValues("/models/{id}", http.MethodGet, "418"))
	if got < 1 {
		t.Fatalf("expected counter for route pattern, got %v", got)
	}
	body := scrape(t)
	if !bytes.Contains(body, []byte("runnerd_http_requests_total")) {
		t.Fatalf("runnerd_http_requests_total missing from scrape")
	}
}

func TestIncrementBackpressure(t *testing.T) {
	baseline := testutil.ToFloat64(backpressureTotal.WithLabelValues("concurrent_generation"))
	IncrementBackpressure("concurrent_generation")
	if got := testutil.ToFloat64(backpressureTotal.WithLabelValues("concurrent_generation")); got < baseline+1 {
		t.Fatalf("expected increment, got %v", got)
	}
	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified"))
	IncrementBackpressure("")
	if after := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified")); after < before+1 {
		t.Fatalf("empty reason should count as unspecified: before=%v after=%v", before, after)
	}
}

func TestGenerate429CountsBackpressure(t *testing.T) {
	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("concurrent_generation"))
	r := NewMux(&mockService{genErr: errConcurrent})
	if w := postJSON(t, r, "/generate", `{"prompt":"hi"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
	if after := testutil.ToFloat64(backpressureTotal.WithLabelValues("concurrent_generation")); after < before+1 {
		t.Fatalf("backpressure not counted")
	}
}

func TestStreamLinesAreCountedByKind(t *testing.T) {
	tokens := testutil.ToFloat64(streamLinesTotal.WithLabelValues("token"))
	done := testutil.ToFloat64(streamLinesTotal.WithLabelValues("done"))

	env := newServiceEnv(t, "", types.GenerationOptions{})
	env.load(t)
	w := postJSON(t, env.mux, "/generate", `{"prompt":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("generate status=%d", w.Code)
	}
	if got := testutil.ToFloat64(streamLinesTotal.WithLabelValues("token")); got != tokens+3 {
		t.Fatalf("token lines: got %v want %v", got, tokens+3)
	}
	if got := testutil.ToFloat64(streamLinesTotal.WithLabelValues("done")); got != done+1 {
		t.Fatalf("done lines: got %v want %v", got, done+1)
	}
}
