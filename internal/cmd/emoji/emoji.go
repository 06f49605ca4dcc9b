// Package emoji provides symbol constants for CLI output.
package emoji

// Status symbols.
const (
	// Success marks a completed operation.
	Success = "✓"

	// Error marks a failed operation.
	Error = "✗"

	// Stop marks a shutdown in progress.
	Stop = "✗"

	// Warning marks a non-fatal problem.
	Warning = "!"

	// Unknown marks an unrecognized state.
	Unknown = "?"
)

// Connection state symbols.
const (
	// Connected is a healthy streaming connection.
	Connected = "●"

	// Degraded is a connection with missed heartbeats.
	Degraded = "◐"

	// Fallback is a session served by polling.
	Fallback = "◇"

	// Disconnected is a session without a transport.
	Disconnected = "○"

	// Gap marks missing sequence numbers on a topic.
	Gap = "⚠"
)
