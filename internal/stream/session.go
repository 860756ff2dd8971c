package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/environmental-monitor/internal/window"
)

// State is the lifecycle state of a display session
type State int

const (
	StateUnseeded State = iota // Window not yet loaded from the store
	StateActive                // Window seeded, receiving ticks
	StateClosed                // Session ended, window discarded
)

func (s State) String() string {
	switch s {
	case StateUnseeded:
		return "unseeded"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one viewer's display state: a private rolling window of recent
// samples. Sessions are independent; each has its own lock, so ticks across
// sessions never wait on one another.
type Session struct {
	ID      string
	Created time.Time

	lastSeen atomic.Int64 // Unix nanoseconds of the last access

	mu     sync.Mutex
	state  State
	window *window.Window
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSeen returns when the session was last opened, read or ticked
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load()).UTC()
}

func (s *Session) touch(t time.Time) {
	s.lastSeen.Store(t.UnixNano())
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
