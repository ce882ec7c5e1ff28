package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"runnerd/internal/bridge"
	"runnerd/pkg/types"
)

// Runner is the generation session coordinator for one engine bridge.
type Runner struct {
	bridge    bridge.Bridge
	log       zerolog.Logger
	publisher EventPublisher
	metrics   *metrics
	tracer    trace.Tracer
	subs      *subscriptionSet
	startTime time.Time

	// mu guards the fields below.
	mu sync.RWMutex

	// active is the one session listening on the shared bridge channel,
	// whichever handle it runs on.
	active *session

	handles          map[string]*Handle
	loadsTotal       uint64
	generationsTotal uint64
	lastErr          string
}

// Bridge returns the engine bridge the runner drives.
func (r *Runner) Bridge() bridge.Bridge { return r.bridge }

// LoadModel issues exactly one load request to the bridge. On success the
// returned handle is loaded; on failure a *LoadError is returned and no
// handle is exposed. Concurrent loads are not serialized by the runner.
func (r *Runner) LoadModel(ctx context.Context, cfg types.ModelConfig) (*Handle, error) {
	cfg = cfg.WithDefaults()
	ctx, span := r.tracer.Start(ctx, "runner.LoadModel", trace.WithAttributes(
		attribute.String("model.path", cfg.ModelPath),
		attribute.String("tokenizer.type", string(cfg.TokenizerType)),
	))
	defer span.End()

	now := time.Now()
	h := &Handle{id: uuid.NewString(), cfg: cfg, createdAt: now, lastUsed: now, state: StateUnloaded}
	h.setState(StateLoading)
	r.mu.Lock()
	r.loadsTotal++
	r.mu.Unlock()

	r.log.Info().Str("event", EventLoadStart).Str("handle", h.id).Str("model", cfg.ModelPath).
		Str("tokenizer", cfg.TokenizerPath).Str("tokenizer_type", string(cfg.TokenizerType)).Msg("loading model")
	r.publisher.Publish(Event{Name: EventLoadStart, HandleID: h.id, Fields: map[string]any{"model_path": cfg.ModelPath}})

	if err := r.callLoad(ctx, cfg); err != nil {
		h.setState(StateLoadFailed)
		lerr := &LoadError{ModelPath: cfg.ModelPath, Cause: err}
		r.recordErr(lerr)
		r.metrics.loads.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		r.log.Error().Str("event", EventLoadFailed).Str("handle", h.id).Err(err).Msg("model load failed")
		r.publisher.Publish(Event{Name: EventLoadFailed, HandleID: h.id, Fields: map[string]any{"error": err.Error()}})
		return nil, lerr
	}

	h.setState(StateLoaded)
	r.mu.Lock()
	r.handles[h.id] = h
	r.mu.Unlock()
	r.metrics.loads.WithLabelValues("loaded").Inc()
	dur := time.Since(now)
	r.log.Info().Str("event", EventLoadDone).Str("handle", h.id).Dur("dur", dur).Msg("model loaded")
	r.publisher.Publish(Event{Name: EventLoadDone, HandleID: h.id, Fields: map[string]any{"dur_ms": int(dur / time.Millisecond)}})
	return h, nil
}

// callLoad invokes the bridge, turning a panic into an error.
func (r *Runner) callLoad(ctx context.Context, cfg types.ModelConfig) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine panic during load: %v", p)
		}
	}()
	return r.bridge.LoadModel(ctx, cfg)
}

// IsLoaded reports whether h is loaded, confirmed by a live bridge query.
// The answer is never cached. A nil handle reports false.
func (r *Runner) IsLoaded(ctx context.Context, h *Handle) (bool, error) {
	if h == nil || h.State() != StateLoaded {
		return false, nil
	}
	ok, err := r.bridge.IsLoaded(ctx)
	if err != nil {
		return false, fmt.Errorf("query engine: %w", err)
	}
	return ok, nil
}

// Unload releases h. It fails with *ConcurrentGenerationError while a
// session is active; generation is never cancelled implicitly. When the last
// handle is released, a bridge implementing bridge.Closer is closed.
func (r *Runner) Unload(h *Handle) error {
	if h == nil {
		return &NotLoadedError{}
	}
	h.mu.Lock()
	if h.active != nil {
		sid := h.active.id
		h.mu.Unlock()
		return &ConcurrentGenerationError{HandleID: h.id, ActiveSession: sid}
	}
	prev := h.state
	h.state = StateUnloaded
	h.mu.Unlock()
	if prev != StateLoaded {
		return &NotLoadedError{HandleID: h.id, State: prev}
	}

	r.mu.Lock()
	delete(r.handles, h.id)
	last := len(r.handles) == 0
	r.mu.Unlock()

	r.log.Info().Str("event", EventUnload).Str("handle", h.id).Msg("model unloaded")
	r.publisher.Publish(Event{Name: EventUnload, HandleID: h.id, Fields: map[string]any{}})
	if c, ok := r.bridge.(bridge.Closer); ok && last {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close engine: %w", err)
		}
	}
	return nil
}

// Handle looks up a loaded handle by id.
func (r *Runner) Handle(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Ready reports whether any handle is loaded.
func (r *Runner) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handles {
		if h.State() == StateLoaded {
			return true
		}
	}
	return false
}

func (r *Runner) recordErr(err error) {
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
}
