// Package model defines the provider-agnostic abstractions for talking to
// chat language models.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic testing (ScriptedModel)
//
// Providers (OpenAI, Anthropic) implement Model in sub packages so the
// orchestrator stays decoupled from vendor SDKs.
package model
