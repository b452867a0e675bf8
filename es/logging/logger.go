// Package logging provides a minimal interface for observability and
// debugging. It is designed to be optional and non-blocking, with zero
// overhead when disabled. Users can implement Logger to integrate their
// preferred logging library.
package logging

import "context"

// Logger is implemented by anything that can record structured,
// keyvals-style log lines. The event store calls Error for the disposal
// failures it suppresses in Store.Close, and the snapshot scheduler calls
// Error for failed snapshot passes; nothing in this module calls Debug or
// Info.
type Logger interface {
	// Debug logs verbose operational detail.
	Debug(ctx context.Context, msg string, keyvals ...any)

	// Info logs significant events during normal operation.
	Info(ctx context.Context, msg string, keyvals ...any)

	// Error logs failures that require attention but were not propagated.
	Error(ctx context.Context, msg string, keyvals ...any)
}

// NoOp is a Logger that does nothing. It is the default when no logger is
// configured.
type NoOp struct{}

// Debug implements Logger.
func (NoOp) Debug(_ context.Context, _ string, _ ...any) {}

// Info implements Logger.
func (NoOp) Info(_ context.Context, _ string, _ ...any) {}

// Error implements Logger.
func (NoOp) Error(_ context.Context, _ string, _ ...any) {}
