package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runnerd/internal/events"
	"runnerd/pkg/types"
)

// fakeServer is a minimal OpenAI-compatible server.
type fakeServer struct {
	mu       sync.Mutex
	models   []string
	tokens   []string
	failChat bool
	lastBody map[string]any
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		data := make([]map[string]any, 0, len(f.models))
		for _, id := range f.models {
			data = append(data, map[string]any{"id": id, "object": "model", "created": 0, "owned_by": "test"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		_ = json.Unmarshal(b, &f.lastBody)
		fail := f.failChat
		toks := append([]string(nil), f.tokens...)
		f.mu.Unlock()
		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"model crashed","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, tok := range toks {
			chunk := map[string]any{
				"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "m",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": tok}}},
			}
			jb, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", jb)
			if fl != nil {
				fl.Flush()
			}
		}
		last := map[string]any{
			"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "m",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{}, "finish_reason": "stop"}},
		}
		jb, _ := json.Marshal(last)
		fmt.Fprintf(w, "data: %s\n\n", jb)
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	return mux
}

func newRemoteForTest(t *testing.T, f *fakeServer, model string) *Remote {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewRemote(RemoteConfig{BaseURL: srv.URL + "/v1", Model: model, RequestTimeout: 5 * time.Second})
}

func TestRemoteLoadSelectsModelByFileName(t *testing.T) {
	f := &fakeServer{models: []string{"other.gguf", "tiny.gguf"}}
	b := newRemoteForTest(t, f, "")
	ctx := context.Background()

	ok, err := b.IsLoaded(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "nothing selected before load")

	err = b.LoadModel(ctx, types.ModelConfig{ModelPath: "/models/tiny.gguf", TokenizerPath: "/models/tok.json"})
	require.NoError(t, err)
	assert.Equal(t, "tiny.gguf", b.selected())

	ok, err = b.IsLoaded(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// model vanishes from the server
	f.mu.Lock()
	f.models = []string{"other.gguf"}
	f.mu.Unlock()
	ok, err = b.IsLoaded(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoteLoadFallsBackToFirstModel(t *testing.T) {
	f := &fakeServer{models: []string{"served"}}
	b := newRemoteForTest(t, f, "")
	require.NoError(t, b.LoadModel(context.Background(), types.ModelConfig{ModelPath: "x.pte", TokenizerPath: "t"}))
	assert.Equal(t, "served", b.selected())
}

func TestRemoteLoadErrors(t *testing.T) {
	empty := newRemoteForTest(t, &fakeServer{}, "")
	err := empty.LoadModel(context.Background(), types.ModelConfig{ModelPath: "x", TokenizerPath: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serves no models")

	missing := newRemoteForTest(t, &fakeServer{models: []string{"a"}}, "b")
	err = missing.LoadModel(context.Background(), types.ModelConfig{ModelPath: "x", TokenizerPath: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"b"`)
}

func TestRemoteGenerateStreamsEvents(t *testing.T) {
	f := &fakeServer{models: []string{"m"}, tokens: []string{"a", "b", "c"}}
	b := newRemoteForTest(t, f, "m")
	ctx := context.Background()
	require.NoError(t, b.LoadModel(ctx, types.ModelConfig{ModelPath: "m", TokenizerPath: "t"}))

	var (
		toks  []string
		stats Stats
		errs  int
	)
	b.Events().On(events.Token, func(p any) { toks = append(toks, p.(string)) })
	b.Events().On(events.Complete, func(p any) { stats = StatsFrom(p) })
	b.Events().On(events.Error, func(any) { errs++ })

	out, err := b.Generate(ctx, "hi", GenerationConfig{MaxNewTokens: 7, Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Equal(t, []string{"a", "b", "c"}, toks)
	assert.Equal(t, 0, errs)
	require.NotNil(t, stats)
	assert.Equal(t, "stop", stats["finish_reason"])
	assert.Equal(t, 3, stats["generated_tokens"])

	f.mu.Lock()
	body := f.lastBody
	f.mu.Unlock()
	assert.Equal(t, "m", body["model"])
	assert.EqualValues(t, 7, body["max_tokens"])
	assert.EqualValues(t, 0.5, body["temperature"])
}

func TestRemoteGenerateEcho(t *testing.T) {
	f := &fakeServer{models: []string{"m"}, tokens: []string{"!"}}
	b := newRemoteForTest(t, f, "m")
	require.NoError(t, b.LoadModel(context.Background(), types.ModelConfig{ModelPath: "m", TokenizerPath: "t"}))
	var sb strings.Builder
	b.Events().On(events.Token, func(p any) { sb.WriteString(p.(string)) })
	_, err := b.Generate(context.Background(), "hello", GenerationConfig{MaxNewTokens: 1, Echo: true})
	require.NoError(t, err)
	assert.Equal(t, "hello!", sb.String())
}

func TestRemoteGenerateFailureEmitsErrorAndReturnsIt(t *testing.T) {
	f := &fakeServer{models: []string{"m"}, failChat: true}
	b := newRemoteForTest(t, f, "m")
	require.NoError(t, b.LoadModel(context.Background(), types.ModelConfig{ModelPath: "m", TokenizerPath: "t"}))

	var msgs []string
	completes := 0
	b.Events().On(events.Error, func(p any) { msgs = append(msgs, ErrorMessage(p)) })
	b.Events().On(events.Complete, func(any) { completes++ })

	_, err := b.Generate(context.Background(), "hi", GenerationConfig{MaxNewTokens: 1})
	require.Error(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "remote stream")
	assert.Equal(t, 0, completes)
}

func TestRemoteGenerateWithoutLoad(t *testing.T) {
	b := newRemoteForTest(t, &fakeServer{models: []string{"m"}}, "")
	_, err := b.Generate(context.Background(), "hi", GenerationConfig{})
	assert.ErrorIs(t, err, errNotLoaded)
}
