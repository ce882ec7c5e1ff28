package runner

import (
	"sync"
	"time"

	"runnerd/internal/bridge"
	"runnerd/pkg/types"
)

// HandleState is the lifecycle state of a model handle.
type HandleState string

const (
	StateUnloaded   HandleState = "unloaded"
	StateLoading    HandleState = "loading"
	StateLoaded     HandleState = "loaded"
	StateLoadFailed HandleState = "load_failed"
)

// SessionState is the state of one generation session.
type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionActive    SessionState = "active"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

// Callbacks receive streamed output for one Generate call. All are optional.
// OnToken is fire-and-forget; OnComplete and OnError fire at most once, never
// both, and after the last OnToken. OnToken must not emit on the bridge
// channel itself.
type Callbacks struct {
	OnToken    func(token string)
	OnComplete func(stats bridge.Stats)
	OnError    func(err error)
}

// Handle represents one loaded model instance.
type Handle struct {
	id        string
	cfg       types.ModelConfig
	createdAt time.Time

	mu       sync.Mutex
	state    HandleState
	active   *session // session running on this handle, if any
	lastUsed time.Time
}

// ID returns the handle id.
func (h *Handle) ID() string { return h.id }

// Config returns the model configuration the handle was loaded with.
func (h *Handle) Config() types.ModelConfig { return h.cfg }

// State returns the current lifecycle state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s HandleState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// activeSession returns the active session, or nil.
func (h *Handle) activeSession() *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}
