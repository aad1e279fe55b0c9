package session

import (
	"sort"
	"sync"

	"github.com/hupe1980/todomesh/core"
)

// DefaultID is used when a caller does not name a conversation.
const DefaultID = "default"

// InMemoryStore is a volatile session registry storing sessions in a process
// local map. It is safe for concurrent access. Get hands out the live
// *core.Session (not a clone) so that every instruction of a conversation
// appends to the same history; Session itself serializes runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Get returns the session for id, creating it lazily. An empty id maps to
// DefaultID.
func (s *InMemoryStore) Get(id string) *core.Session {
	if id == "" {
		id = DefaultID
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess = core.NewSession(id)
	s.sessions[id] = sess
	return sess
}

// Delete forgets the session for id. Unknown ids are ignored.
func (s *InMemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of live sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the ids of all live sessions, sorted.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
