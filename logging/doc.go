// Package logging provides a minimal logging interface and adapters for todomesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that stores, tools and the flow use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with component/session cloning and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh := todomesh.New(func(o *todomesh.Options) { o.Logger = logger })
package logging
