package runner

import "sync"

// Lifecycle event names.
const (
	EventLoadStart         = "load_start"
	EventLoadDone          = "load_done"
	EventLoadFailed        = "load_failed"
	EventUnload            = "unload"
	EventGenerateStart     = "generate_start"
	EventGenerateRejected  = "generate_rejected"
	EventSessionCompleted  = "session_completed"
	EventSessionFailed     = "session_failed"
	EventDuplicateTerminal = "duplicate_terminal"
)

// Event represents a runner lifecycle event.
// Minimal and stable: name + handle ID and optional fields via key/values.
type Event struct {
	Name     string
	HandleID string
	Fields   map[string]any
}

// EventPublisher receives events from the runner. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests and status pages.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the recorded event names in publish order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}
