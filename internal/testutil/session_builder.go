package testutil

import (
	"github.com/hupe1980/todomesh/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").User("add milk").Assistant("ok").Build()
type SessionBuilder struct {
	id    string
	turns []core.Content
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id}
}

// User appends a user text turn (chainable).
func (b *SessionBuilder) User(text string) *SessionBuilder {
	b.turns = append(b.turns, core.NewTextContent(core.RoleUser, text))
	return b
}

// Assistant appends an assistant text turn (chainable).
func (b *SessionBuilder) Assistant(text string) *SessionBuilder {
	b.turns = append(b.turns, core.NewTextContent(core.RoleAssistant, text))
	return b
}

// Turn appends an arbitrary turn (chainable).
func (b *SessionBuilder) Turn(c core.Content) *SessionBuilder {
	b.turns = append(b.turns, c)
	return b
}

// Build returns a *core.Session with the pre-populated history.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id)
	s.Append(b.turns...)
	return s
}
