package runner

import (
	"fmt"
	"sync"
	"time"

	"runnerd/internal/bridge"
	"runnerd/internal/events"
)

// session is one in-flight Generate call.
type session struct {
	id      string
	handle  *Handle
	cb      Callbacks
	started time.Time
	done    chan struct{}

	// deliver is held across OnToken and the terminal transition, so every
	// accepted token reaches the caller before OnComplete or OnError.
	deliver sync.Mutex

	mu     sync.Mutex
	state  SessionState
	output []string
	err    error
}

func newSession(id string, h *Handle, cb Callbacks) *session {
	return &session{
		id:      id,
		handle:  h,
		cb:      cb,
		started: time.Now(),
		done:    make(chan struct{}),
		state:   SessionIdle,
	}
}

// snapshot returns the state, token count and terminal error.
func (s *session) snapshot() (SessionState, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, len(s.output), s.err
}

// subscribe registers the session's three listeners on the bridge channel.
func (r *Runner) subscribe(s *session) {
	em := r.bridge.Events()
	r.subs.add(s.id,
		em.On(events.Token, func(p any) { r.onToken(s, p) }),
		em.On(events.Complete, func(p any) {
			r.finish(s, SessionCompleted, bridge.StatsFrom(p), nil)
		}),
		em.On(events.Error, func(p any) {
			msg := bridge.ErrorMessage(p)
			r.finish(s, SessionFailed, nil, &GenerationError{SessionID: s.id, Message: msg})
		}),
	)
}

func (r *Runner) onToken(s *session, payload any) {
	tok, ok := payload.(string)
	if !ok {
		tok = fmt.Sprint(payload)
	}
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	if s.state != SessionActive {
		s.mu.Unlock()
		return
	}
	s.output = append(s.output, tok)
	s.mu.Unlock()
	r.metrics.tokens.Inc()
	if s.cb.OnToken != nil {
		s.cb.OnToken(tok)
	}
}

// finish moves s to a terminal state on an engine signal. Only the first
// terminal signal wins: it removes the session's subscriptions, frees the
// single-flight slot and then invokes the matching callback. Later signals
// are no-ops, counted as duplicates.
func (r *Runner) finish(s *session, state SessionState, stats bridge.Stats, err error) bool {
	return r.settle(s, state, stats, err, true)
}

// settle is finish with control over duplicate accounting. The failed-request
// path settles without counting: an engine that reports a failure through
// onError and also fails the request is one failure, not two.
func (r *Runner) settle(s *session, state SessionState, stats bridge.Stats, err error, countDuplicate bool) bool {
	s.deliver.Lock()
	s.mu.Lock()
	if s.state != SessionActive {
		prev := s.state
		s.mu.Unlock()
		s.deliver.Unlock()
		if !countDuplicate {
			return false
		}
		r.metrics.duplicates.Inc()
		r.log.Debug().Str("event", EventDuplicateTerminal).Str("session", s.id).
			Str("state", string(prev)).Str("ignored", string(state)).Msg("terminal signal ignored")
		r.publisher.Publish(Event{Name: EventDuplicateTerminal, HandleID: s.handle.id, Fields: map[string]any{"session": s.id, "ignored": string(state)}})
		return false
	}
	s.state = state
	s.err = err
	tokens := len(s.output)
	s.mu.Unlock()
	s.deliver.Unlock()

	removed := r.subs.release(s.id)
	h := s.handle
	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	h.mu.Lock()
	if h.active == s {
		h.active = nil
	}
	h.mu.Unlock()
	r.mu.Unlock()
	// Waiters resume once the callback below has returned.
	defer close(s.done)

	dur := time.Since(s.started)
	outcome := string(state)
	r.metrics.active.Dec()
	r.metrics.generations.WithLabelValues(outcome).Inc()
	r.metrics.duration.WithLabelValues(outcome).Observe(dur.Seconds())

	name := EventSessionCompleted
	fields := map[string]any{"session": s.id, "tokens": tokens, "dur_ms": int(dur / time.Millisecond), "subscriptions_removed": removed}
	if state == SessionFailed {
		name = EventSessionFailed
		fields["error"] = err.Error()
		r.recordErr(err)
		r.log.Warn().Str("event", name).Str("handle", h.id).Str("session", s.id).Int("tokens", tokens).Err(err).Msg("generation failed")
	} else {
		r.log.Info().Str("event", name).Str("handle", h.id).Str("session", s.id).Int("tokens", tokens).Dur("dur", dur).Msg("generation completed")
	}
	r.publisher.Publish(Event{Name: name, HandleID: h.id, Fields: fields})

	switch state {
	case SessionCompleted:
		if s.cb.OnComplete != nil {
			s.cb.OnComplete(stats)
		}
	case SessionFailed:
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	}
	return true
}
