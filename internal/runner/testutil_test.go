package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"runnerd/internal/bridge"
	"runnerd/internal/events"
	"runnerd/pkg/types"
)

// fakeBridge is an in-memory engine whose generate behavior is scripted per test.
type fakeBridge struct {
	em *events.Emitter

	mu            sync.Mutex
	loadErr       error
	loaded        bool
	closed        bool
	loadCalls     int
	isLoadedCalls int
	genCalls      int
	lastPrompt    string
	lastCfg       bridge.GenerationConfig
	lastModel     types.ModelConfig
	// genFn scripts Generate; nil returns ("", nil) without emitting.
	genFn func(ctx context.Context, prompt string, cfg bridge.GenerationConfig) (string, error)
}

func newFakeBridge() *fakeBridge { return &fakeBridge{em: events.NewEmitter()} }

func (f *fakeBridge) Events() *events.Emitter { return f.em }

func (f *fakeBridge) LoadModel(ctx context.Context, cfg types.ModelConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	f.lastModel = cfg
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = true
	return nil
}

func (f *fakeBridge) IsLoaded(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isLoadedCalls++
	return f.loaded, nil
}

func (f *fakeBridge) Generate(ctx context.Context, prompt string, cfg bridge.GenerationConfig) (string, error) {
	f.mu.Lock()
	f.genCalls++
	f.lastPrompt = prompt
	f.lastCfg = cfg
	fn := f.genFn
	f.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(ctx, prompt, cfg)
}

func (f *fakeBridge) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.loaded = false
	return nil
}

func (f *fakeBridge) setGen(fn func(ctx context.Context, prompt string, cfg bridge.GenerationConfig) (string, error)) {
	f.mu.Lock()
	f.genFn = fn
	f.mu.Unlock()
}

func (f *fakeBridge) calls() (load, isLoaded, gen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadCalls, f.isLoadedCalls, f.genCalls
}

// recorder captures callback invocations.
type recorder struct {
	mu        sync.Mutex
	tokens    []string
	completes []bridge.Stats
	errs      []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnToken: func(t string) {
			r.mu.Lock()
			r.tokens = append(r.tokens, t)
			r.mu.Unlock()
		},
		OnComplete: func(s bridge.Stats) {
			r.mu.Lock()
			r.completes = append(r.completes, s)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]string, []bridge.Stats, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...), append([]bridge.Stats(nil), r.completes...), append([]error(nil), r.errs...)
}

type testEnv struct {
	bridge    *fakeBridge
	runner    *Runner
	publisher *MemoryPublisher
}

// newTestEnv builds a runner over a fake bridge with an isolated registry.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	fb := newFakeBridge()
	pub := NewMemoryPublisher()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	r := NewWithConfig(Config{
		Bridge:     fb,
		Logger:     &logger,
		Publisher:  pub,
		Registerer: prometheus.NewRegistry(),
	})
	return testEnv{bridge: fb, runner: r, publisher: pub}
}

// mustLoad loads a model through the runner and fails the test on error.
func (e testEnv) mustLoad(t *testing.T) *Handle {
	t.Helper()
	h, err := e.runner.LoadModel(testCtx(t), types.ModelConfig{ModelPath: "/m/model.pte", TokenizerPath: "/m/tokenizer.json"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return h
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
