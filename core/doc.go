// Package core provides the foundational domain types shared by every todomesh
// package. It defines:
//
//   - Items (todo entries carrying an embedding vector) and nearest-neighbor Matches
//   - Content / Part (the role-tagged turns of a conversation)
//   - Session (an explicit, caller-owned conversation container)
//   - The error taxonomy (ProviderError, StoreError, ToolNotFoundError)
//
// The package intentionally keeps implementation concerns (persistence,
// providers, orchestration) out of scope so that store, model and flow
// packages can depend on it without depending on each other.
package core
