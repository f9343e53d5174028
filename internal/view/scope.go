package view

import (
	"sync"
	"time"
)

// Scope tracks the lifetime of one screen. Callbacks routed through a Scope
// are dropped once it is closed, and timers started with After are stopped.
type Scope struct {
	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

// NewScope returns an open scope.
func NewScope() *Scope {
	return &Scope{timers: make(map[*time.Timer]struct{})}
}

// Alive reports whether the scope is still open.
func (s *Scope) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Do runs fn if the scope is open. It reports whether fn ran.
// fn runs with the scope lock held; it must not call back into the scope.
func (s *Scope) Do(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

// After runs fn after d unless the scope closes first.
func (s *Scope) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.timers, t)
		s.mu.Unlock()
		fn()
	})
	s.timers[t] = struct{}{}
}

// Close stops pending timers and suppresses later callbacks. Idempotent.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}
