package agent

import "sync"

// Session is the per-conversation context: it owns the append-only
// interaction store. Turns on one session are serialized by Agent.Process;
// sessions never share state.
type Session struct {
	ID string

	turn sync.Mutex

	mu          sync.RWMutex
	perceptions []Perception
}

// NewSession creates a session with an empty interaction store.
func NewSession(id string) *Session {
	return &Session{ID: id}
}

// RestoreSession creates a session whose store is pre-filled with history,
// e.g. perceptions loaded from persistent storage.
func RestoreSession(id string, history []Perception) *Session {
	s := NewSession(id)
	s.perceptions = append(s.perceptions, history...)
	return s
}

// Append adds a perception and returns the new store size.
func (s *Session) Append(p Perception) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perceptions = append(s.perceptions, p)
	return len(s.perceptions)
}

// Len returns the number of stored perceptions.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.perceptions)
}

// History returns a copy of the stored perceptions in insertion order.
// Entity maps are shared with the store and must not be modified.
func (s *Session) History() []Perception {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Perception, len(s.perceptions))
	copy(out, s.perceptions)
	return out
}
