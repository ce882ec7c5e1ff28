package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"runnerd/internal/bridge"
	"runnerd/internal/httpapi"
	"runnerd/internal/runner"
)

// createTempModelsDir creates a models directory with empty weight files that
// share one tokenizer.json and returns the directory path.
func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range append(names, "tokenizer.json") {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(""), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	return dir
}

// engine is a fake OpenAI-compatible inference server.
type engine struct {
	mu     sync.Mutex
	models []string
	tokens []string
	fail   bool
	// gate, when set, blocks chat completions until closed.
	gate chan struct{}
}

func (e *engine) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		data := make([]map[string]any, 0, len(e.models))
		for _, id := range e.models {
			data = append(data, map[string]any{"id": id, "object": "model", "created": 0, "owned_by": "e2e"})
		}
		e.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		e.mu.Lock()
		fail, toks, gate := e.fail, append([]string(nil), e.tokens...), e.gate
		e.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"model crashed","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunk := func(delta map[string]any, finish any) {
			jb, _ := json.Marshal(map[string]any{
				"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "m",
				"choices": []map[string]any{{"index": 0, "delta": delta, "finish_reason": finish}},
			})
			fmt.Fprintf(w, "data: %s\n\n", jb)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		for _, tok := range toks {
			chunk(map[string]any{"content": tok}, nil)
		}
		chunk(map[string]any{}, "stop")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	return mux
}

// newStack starts the fake engine and a runnerd HTTP server wired to it
// through the remote bridge.
func newStack(t *testing.T, modelsDir string, e *engine) (*httptest.Server, *httpapi.RunnerService) {
	t.Helper()
	engineSrv := httptest.NewServer(e.handler())
	t.Cleanup(engineSrv.Close)

	b := bridge.NewRemote(bridge.RemoteConfig{BaseURL: engineSrv.URL + "/v1", APIKey: "e2e"})
	r := runner.NewWithConfig(runner.Config{Bridge: b, Registerer: prometheus.NewRegistry()})
	svc := httpapi.NewRunnerService(r, httpapi.ServiceConfig{ModelsDir: modelsDir})
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(srv.Close)
	return srv, svc
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func decodeLines(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("ndjson: %v (%s)", err, body)
		}
		out = append(out, m)
	}
	return out
}

