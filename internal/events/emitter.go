// Package events implements the push-style event channel an engine uses to
// deliver generation output: named events fanned out to removable listeners.
package events

import (
	"sort"
	"sync"
)

// Event names emitted by engine bridges.
const (
	Token    = "onToken"
	Complete = "onComplete"
	Error    = "onError"
)

// Listener receives the payload of one emitted event.
type Listener func(payload any)

// Emitter is a process-wide, goroutine-safe event channel. Emit delivers
// synchronously on the calling goroutine, in subscription order, so events
// from one producer reach each listener in emission order.
type Emitter struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string]map[uint64]Listener
}

// NewEmitter returns an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string]map[uint64]Listener)}
}

// Subscription is the handle returned by On. Remove is idempotent.
type Subscription struct {
	e    *Emitter
	name string
	id   uint64
	once sync.Once
}

// Name reports the event the subscription listens to.
func (s *Subscription) Name() string { return s.name }

// Remove detaches the listener. Calling it more than once is a no-op.
func (s *Subscription) Remove() {
	s.once.Do(func() {
		s.e.mu.Lock()
		defer s.e.mu.Unlock()
		if set := s.e.listeners[s.name]; set != nil {
			delete(set, s.id)
			if len(set) == 0 {
				delete(s.e.listeners, s.name)
			}
		}
	})
}

// On registers l for events named name.
func (e *Emitter) On(name string, l Listener) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string]map[uint64]Listener)
	}
	e.nextID++
	id := e.nextID
	set := e.listeners[name]
	if set == nil {
		set = make(map[uint64]Listener)
		e.listeners[name] = set
	}
	set[id] = l
	return &Subscription{e: e, name: name, id: id}
}

// Emit delivers payload to every listener registered for name at the time of
// the call. Listeners may add or remove subscriptions while being invoked.
func (e *Emitter) Emit(name string, payload any) {
	e.mu.RLock()
	set := e.listeners[name]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	fns := make([]Listener, 0, len(set))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fns = append(fns, set[id])
	}
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(payload)
	}
}

// ListenerCount returns the number of listeners registered for name.
func (e *Emitter) ListenerCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[name])
}

// Len returns the number of listeners across all event names.
func (e *Emitter) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, set := range e.listeners {
		n += len(set)
	}
	return n
}
