package httpapi

import (
	"context"
	"io"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"runnerd/internal/bridge"
	"runnerd/internal/registry"
	"runnerd/internal/runner"
	"runnerd/pkg/types"
)

// RunnerService implements Service on top of a runner. It owns the current
// model handle: a successful load replaces it.
type RunnerService struct {
	runner    *runner.Runner
	modelsDir string
	defaults  types.GenerationOptions
	log       zerolog.Logger

	mu      sync.Mutex
	current *runner.Handle
}

// ServiceConfig configures NewRunnerService.
type ServiceConfig struct {
	ModelsDir string
	// Defaults fill options the request omits, before the runner defaults.
	Defaults types.GenerationOptions
	Logger   *zerolog.Logger
}

// NewRunnerService constructs a RunnerService.
func NewRunnerService(r *runner.Runner, cfg ServiceConfig) *RunnerService {
	s := &RunnerService{runner: r, modelsDir: cfg.ModelsDir, defaults: cfg.Defaults, log: zerolog.Nop()}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "service").Logger()
	}
	return s
}

// ListModels scans the models directory.
func (s *RunnerService) ListModels() ([]types.Model, error) {
	if s.modelsDir == "" {
		return []types.Model{}, nil
	}
	models, err := registry.LoadDir(s.modelsDir)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []types.Model{}
	}
	return models, nil
}

// Load resolves req to a model config and loads it.
func (s *RunnerService) Load(ctx context.Context, req types.LoadRequest) (types.LoadResponse, error) {
	mc, err := s.resolve(req)
	if err != nil {
		return types.LoadResponse{}, err
	}
	h, err := s.runner.LoadModel(ctx, mc)
	if err != nil {
		return types.LoadResponse{}, err
	}
	s.SetCurrent(h)
	return types.LoadResponse{Handle: h.ID(), State: string(h.State())}, nil
}

func (s *RunnerService) resolve(req types.LoadRequest) (types.ModelConfig, error) {
	if req.Model == "" {
		return types.ModelConfig{ModelPath: req.ModelPath, TokenizerPath: req.TokenizerPath, TokenizerType: req.TokenizerType}, nil
	}
	models, err := s.ListModels()
	if err != nil {
		return types.ModelConfig{}, err
	}
	m, ok := registry.Find(models, req.Model)
	if !ok {
		return types.ModelConfig{}, ErrNotFound("model not found: " + req.Model)
	}
	mc, err := registry.ModelConfig(m)
	if err != nil {
		return types.ModelConfig{}, ErrBadRequest(err.Error())
	}
	if req.TokenizerType != "" {
		mc.TokenizerType = req.TokenizerType
	}
	return mc, nil
}

// SetCurrent makes h the handle used by Loaded and Generate. The previous
// handle is unloaded unless a session is still running on it.
func (s *RunnerService) SetCurrent(h *runner.Handle) {
	s.mu.Lock()
	prev := s.current
	s.current = h
	s.mu.Unlock()
	if prev == nil || prev == h {
		return
	}
	if err := s.runner.Unload(prev); err != nil {
		s.log.Warn().Str("handle", prev.ID()).Err(err).Msg("previous handle not unloaded")
	}
}

// Current returns the current handle, or nil.
func (s *RunnerService) Current() *runner.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Loaded reports whether the current handle is loaded.
func (s *RunnerService) Loaded(ctx context.Context) (bool, error) {
	return s.runner.IsLoaded(ctx, s.Current())
}

// Generate runs one session on the current handle and streams it as NDJSON
// until the session terminates or ctx is done. A session that fails before
// anything was streamed is returned without writing. Once ctx is done nothing
// more is written to w, even though the session itself keeps running.
func (s *RunnerService) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error {
	st := &stream{w: w, flush: flush, done: make(chan struct{})}
	cb := runner.Callbacks{
		OnToken: func(tok string) {
			st.token(tok)
		},
		OnComplete: func(stats bridge.Stats) {
			st.complete(stats)
		},
		OnError: func(err error) {
			st.fail(err)
		},
	}
	out, err := s.runner.Generate(ctx, s.Current(), req.Prompt, mergeOptions(s.defaults, req.GenerationOptions), cb)
	if err != nil && !st.wrote() {
		return err
	}
	select {
	case <-st.done:
	case <-ctx.Done():
		// The session outlives the request; drop whatever it still emits.
		st.detach()
		return ctx.Err()
	}
	return st.finish(out)
}

// mergeOptions fills unset fields of req from defaults.
func mergeOptions(defaults, req types.GenerationOptions) types.GenerationOptions {
	if req.MaxNewTokens == nil {
		req.MaxNewTokens = defaults.MaxNewTokens
	}
	if req.Temperature == nil {
		req.Temperature = defaults.Temperature
	}
	if req.Echo == nil {
		req.Echo = defaults.Echo
	}
	return req
}

// Status reports the runner status.
func (s *RunnerService) Status() types.StatusResponse { return s.runner.Status() }

// Ready reports whether any model is loaded.
func (s *RunnerService) Ready() bool { return s.runner.Ready() }

// stream serializes session callbacks into NDJSON lines.
type stream struct {
	w     io.Writer
	flush func()

	mu     sync.Mutex
	lines  int
	text   strings.Builder
	stats  bridge.Stats
	err    error
	closed bool
	done   chan struct{}
}

func (st *stream) writeLine(kind string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = st.w.Write(append(b, '\n'))
	st.lines++
	streamLinesTotal.WithLabelValues(kind).Inc()
	if st.flush != nil {
		st.flush()
	}
}

func (st *stream) token(tok string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.text.WriteString(tok)
	st.writeLine("token", types.TokenLine{Token: tok})
}

func (st *stream) complete(stats bridge.Stats) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.stats = stats
	st.close()
}

func (st *stream) fail(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.err = err
	st.close()
}

func (st *stream) close() {
	st.closed = true
	close(st.done)
}

// detach stops all further writes to w. Callbacks arriving afterwards are
// ignored.
func (st *stream) detach() {
	st.mu.Lock()
	st.closed = true
	st.mu.Unlock()
}

func (st *stream) wrote() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lines > 0
}

// finish writes the terminal line. Content is the engine's direct result
// when it returned one, else the streamed tokens joined. A failure with
// nothing streamed yet is returned unwritten.
func (st *stream) finish(direct string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.err != nil {
		if st.lines > 0 {
			st.writeLine("error", types.ErrorLine{Error: st.err.Error()})
		}
		return st.err
	}
	content := direct
	if content == "" {
		content = st.text.String()
	}
	st.writeLine("done", types.DoneLine{Done: true, Content: content, Stats: st.stats})
	return nil
}
