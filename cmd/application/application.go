// Package application provides the application interface for swarmcast commands.
//
// The Application interface defines the contract between the application layer and
// command implementations, enabling dependency injection and testability.
//
// Usage in Commands:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            app.Logger().Info().Msg("running")
//	            return nil
//	        },
//	    }
//	}
package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/pkg/client"
)

// Application provides the application interface that commands need.
// The App struct from cmd/swarmcast/app implements this interface.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Logger returns the configured logger instance.
	// Commands should use this for all logging operations.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml).
	OutputFormat() string

	// ServerURL returns the base URL of the swarmcast server that client
	// commands (emit, watch, sessions) talk to.
	ServerURL() string

	// APIKey returns the key client commands present, if any.
	APIKey() string

	// Client builds a dashboard client for ServerURL with the configured
	// credentials and logger. Each call returns a new client.
	Client(opts ...client.Option) (*client.Client, error)

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
