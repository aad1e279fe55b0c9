// Package session keeps one core.Session per logical conversation. The
// orchestrator never owns a module-wide history: callers look up (or lazily
// create) the session for a conversation id and pass it into flow.Run.
//
// Sessions are process local and are not persisted across restarts.
package session
