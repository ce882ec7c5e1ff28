package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"runnerd/pkg/types"
)

func TestE2EGenerateOverRemoteEngine(t *testing.T) {
	dir := createTempModelsDir(t, "smollm2.pte", "other.gguf")
	e := &engine{models: []string{"llama3", "smollm2.pte"}, tokens: []string{"Hello", " there", "!"}}
	srv, _ := newStack(t, dir, e)

	resp, body := httpGet(t, srv.URL+"/loaded")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"loaded":false}` {
		t.Fatalf("fresh server: status=%d body=%s", resp.StatusCode, body)
	}
	resp, _ = httpPostJSON(t, srv.URL+"/generate", []byte(`{"prompt":"hi"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("generate before load: expected 409, got %d", resp.StatusCode)
	}

	resp, body = httpPostJSON(t, srv.URL+"/load", []byte(`{"model":"smollm2.pte"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status=%d body=%s", resp.StatusCode, body)
	}
	var lr types.LoadResponse
	if err := json.Unmarshal(body, &lr); err != nil || lr.Handle == "" || lr.State != "loaded" {
		t.Fatalf("load response: %s (%v)", body, err)
	}

	resp, body = httpGet(t, srv.URL+"/loaded")
	if strings.TrimSpace(string(body)) != `{"loaded":true}` {
		t.Fatalf("after load: %s", body)
	}

	resp, body = httpPostJSON(t, srv.URL+"/generate", []byte(`{"prompt":"Hey","max_new_tokens":8}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: status=%d body=%s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	lines := decodeLines(t, body)
	if len(lines) != 4 {
		t.Fatalf("expected 3 tokens and a done line, got %d: %s", len(lines), body)
	}
	last := lines[3]
	if last["done"] != true || last["content"] != "Hello there!" {
		t.Fatalf("unexpected done line: %v", last)
	}

	resp, body = httpGet(t, srv.URL+"/status")
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("status json: %v", err)
	}
	if st.Subscriptions != 0 || st.GenerationsTotal != 1 || len(st.Handles) != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestE2EEngineFailureMaps502(t *testing.T) {
	dir := createTempModelsDir(t, "smollm2.pte")
	e := &engine{models: []string{"smollm2.pte"}, fail: true}
	srv, _ := newStack(t, dir, e)

	if resp, body := httpPostJSON(t, srv.URL+"/load", []byte(`{"model":"smollm2.pte"}`)); resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status=%d body=%s", resp.StatusCode, body)
	}
	resp, body := httpPostJSON(t, srv.URL+"/generate", []byte(`{"prompt":"hi"}`))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", resp.StatusCode, body)
	}

	// the handle is free again after the failure
	e.mu.Lock()
	e.fail = false
	e.tokens = []string{"ok"}
	e.mu.Unlock()
	if resp, body := httpPostJSON(t, srv.URL+"/generate", []byte(`{"prompt":"hi"}`)); resp.StatusCode != http.StatusOK {
		t.Fatalf("retry: status=%d body=%s", resp.StatusCode, body)
	}
}

func TestE2EUnknownModelOnEngineMaps502(t *testing.T) {
	dir := createTempModelsDir(t, "smollm2.pte")
	e := &engine{}
	srv, svc := newStack(t, dir, e)

	resp, body := httpPostJSON(t, srv.URL+"/load", []byte(`{"model":"smollm2.pte"}`))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("engine serving nothing: expected 502, got %d: %s", resp.StatusCode, body)
	}
	if svc.Current() != nil {
		t.Fatalf("failed load must not produce a handle")
	}
	resp, _ = httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz: expected 503, got %d", resp.StatusCode)
	}
}

func TestE2EBackpressure429(t *testing.T) {
	dir := createTempModelsDir(t, "smollm2.pte")
	gate := make(chan struct{})
	e := &engine{models: []string{"smollm2.pte"}, tokens: []string{"slow"}, gate: gate}
	srv, svc := newStack(t, dir, e)
	if resp, body := httpPostJSON(t, srv.URL+"/load", []byte(`{"model":"smollm2.pte"}`)); resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status=%d body=%s", resp.StatusCode, body)
	}

	first := make(chan int, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"prompt":"first"}`))
		if err != nil {
			first <- 0
			return
		}
		_ = resp.Body.Close()
		first <- resp.StatusCode
	}()
	// wait until the first session holds the handle
	for svc.Status().Handles[0].ActiveSession == "" {
		select {
		case code := <-first:
			t.Fatalf("first request finished early with %d", code)
		case <-time.After(5 * time.Millisecond):
		}
	}

	resp, _ := httpPostJSON(t, srv.URL+"/generate", []byte(`{"prompt":"second"}`))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while a session is active, got %d", resp.StatusCode)
	}
	close(gate)
	if code := <-first; code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
}
