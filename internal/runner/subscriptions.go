package runner

import (
	"sync"

	"runnerd/internal/events"
)

// subscriptionSet maps a session id to the event subscriptions registered for
// it. A session's subscriptions are removed together by release.
type subscriptionSet struct {
	mu        sync.Mutex
	bySession map[string][]*events.Subscription
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{bySession: make(map[string][]*events.Subscription)}
}

func (s *subscriptionSet) add(sessionID string, subs ...*events.Subscription) {
	s.mu.Lock()
	s.bySession[sessionID] = append(s.bySession[sessionID], subs...)
	s.mu.Unlock()
}

// release removes every subscription of sessionID and returns how many were
// removed. Releasing an unknown or already released session returns 0.
func (s *subscriptionSet) release(sessionID string) int {
	s.mu.Lock()
	subs := s.bySession[sessionID]
	delete(s.bySession, sessionID)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Remove()
	}
	return len(subs)
}

func (s *subscriptionSet) countFor(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bySession[sessionID])
}

func (s *subscriptionSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, subs := range s.bySession {
		n += len(subs)
	}
	return n
}
