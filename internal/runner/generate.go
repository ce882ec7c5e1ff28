package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"runnerd/internal/bridge"
	"runnerd/pkg/types"
)

// Generate runs one generation session on h.
//
// Preconditions are checked before any engine call or subscription: a handle
// that is not loaded yields *NotLoadedError, and an active session on any
// handle of the runner yields *ConcurrentGenerationError. Otherwise the session becomes active, listens
// on the bridge event channel and issues the generate request with the
// effective configuration (omitted options take their defaults).
//
// The request and the event stream race. The session ends on whichever comes
// first of an onComplete event, an onError event or a failed request; later
// terminal signals are ignored.
//
// Generate returns once the request returns. The result is the text the
// engine returned directly, or "" when it only streams; callers assemble
// streamed text from OnToken (or call Wait to await stream termination). A
// failed request returns a *GenerationError. If the session had already
// failed through onError, that error is returned whether or not the request
// also failed.
func (r *Runner) Generate(ctx context.Context, h *Handle, prompt string, opts types.GenerationOptions, cb Callbacks) (string, error) {
	cfg := bridge.ResolveGenerationConfig(opts)
	ctx, span := r.tracer.Start(ctx, "runner.Generate", trace.WithAttributes(
		attribute.Int("gen.max_new_tokens", cfg.MaxNewTokens),
		attribute.Float64("gen.temperature", cfg.Temperature),
		attribute.Bool("gen.echo", cfg.Echo),
	))
	defer span.End()

	s, err := r.begin(h, cb)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return "", err
	}
	span.SetAttributes(attribute.String("session.id", s.id), attribute.String("handle.id", h.id))

	r.subscribe(s)
	r.log.Info().Str("event", EventGenerateStart).Str("handle", h.id).Str("session", s.id).
		Int("max_new_tokens", cfg.MaxNewTokens).Float64("temperature", cfg.Temperature).Bool("echo", cfg.Echo).
		Msg("generation started")
	r.publisher.Publish(Event{Name: EventGenerateStart, HandleID: h.id, Fields: map[string]any{"session": s.id}})

	out, reqErr := r.callGenerate(ctx, prompt, cfg)
	if reqErr != nil {
		var err error = &GenerationError{SessionID: s.id, Message: reqErr.Error(), Cause: reqErr}
		if !r.settle(s, SessionFailed, nil, err, false) {
			// Already failed through onError: report that failure.
			if _, _, serr := s.snapshot(); serr != nil {
				err = serr
			}
		}
		span.RecordError(reqErr)
		span.SetStatus(codes.Error, "request failed")
		return "", err
	}
	if state, _, serr := s.snapshot(); state == SessionFailed && serr != nil {
		span.SetStatus(codes.Error, "engine reported failure")
		return out, serr
	}
	return out, nil
}

// begin checks the preconditions and claims the single-flight slot. The
// slot is held per runner: every handle shares the bridge's event channel,
// so a session on another handle also makes h busy.
func (r *Runner) begin(h *Handle, cb Callbacks) (*session, error) {
	if h == nil {
		r.metrics.generations.WithLabelValues("rejected_not_loaded").Inc()
		return nil, &NotLoadedError{}
	}
	r.mu.Lock()
	h.mu.Lock()
	if h.state != StateLoaded {
		st := h.state
		h.mu.Unlock()
		r.mu.Unlock()
		r.reject(h, "not_loaded")
		return nil, &NotLoadedError{HandleID: h.id, State: st}
	}
	if cur := r.active; cur != nil {
		h.mu.Unlock()
		r.mu.Unlock()
		r.reject(h, "concurrent")
		return nil, &ConcurrentGenerationError{HandleID: h.id, ActiveSession: cur.id, ActiveHandle: cur.handle.id}
	}
	s := newSession(uuid.NewString(), h, cb)
	s.state = SessionActive
	h.active = s
	h.lastUsed = time.Now()
	h.mu.Unlock()
	r.active = s
	r.generationsTotal++
	r.mu.Unlock()

	r.metrics.active.Inc()
	return s, nil
}

func (r *Runner) reject(h *Handle, reason string) {
	r.metrics.generations.WithLabelValues("rejected_" + reason).Inc()
	r.log.Debug().Str("event", EventGenerateRejected).Str("handle", h.id).Str("reason", reason).Msg("generation rejected")
	r.publisher.Publish(Event{Name: EventGenerateRejected, HandleID: h.id, Fields: map[string]any{"reason": reason}})
}

// callGenerate invokes the bridge, turning a panic into an error.
func (r *Runner) callGenerate(ctx context.Context, prompt string, cfg bridge.GenerationConfig) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine panic during generate: %v", p)
		}
	}()
	return r.bridge.Generate(ctx, prompt, cfg)
}

// Wait blocks until the session active on h (if any) has terminated and its
// callback has returned, or ctx is done. It returns the terminal error of
// the session it waited for, if that session failed.
func (r *Runner) Wait(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	s := h.activeSession()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		_, _, err := s.snapshot()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
