package core

import (
	"sync"
	"time"
)

// Session is an explicit conversation container owned by the caller. It keeps
// the ordered, append-only turn history for one logical conversation and is
// safe for concurrent access.
//
// Contract:
//   - Append updates the Updated timestamp
//   - Turns returns a defensive copy to avoid external mutation
//   - AcquireRun serializes orchestration runs so two instructions on the same
//     session never interleave their turns
type Session struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	mu    sync.RWMutex
	turns []Content
	runMu sync.Mutex
}

// NewSession creates a new empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, Created: now, Updated: now, turns: []Content{}}
}

// Append adds turns to the end of the history.
func (s *Session) Append(turns ...Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
	s.Updated = time.Now()
}

// Turns returns a defensive copy of the full turn history.
func (s *Session) Turns() []Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]Content, len(s.turns))
	copy(turns, s.turns)
	return turns
}

// Len returns the number of turns recorded so far.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Since returns a copy of the turns appended at or after index i.
func (s *Session) Since(i int) []Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(s.turns) {
		return []Content{}
	}
	turns := make([]Content, len(s.turns)-i)
	copy(turns, s.turns[i:])
	return turns
}

// AcquireRun blocks until the caller holds the session's run lock and returns
// the function that releases it.
func (s *Session) AcquireRun() (release func()) {
	s.runMu.Lock()
	return s.runMu.Unlock
}
