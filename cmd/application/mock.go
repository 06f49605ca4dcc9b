package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/pkg/client"
)

// Mock provides a mock implementation of Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default/zero value.
//
// Example Usage:
//
//	mock := &application.Mock{
//	    ServerURLFunc: func() string { return srv.URL },
//	}
//	cmd := emit.NewCommand(mock)
//	// ... test command
type Mock struct {
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	ServerURLFunc    func() string
	APIKeyFunc       func() string
	ClientFunc       func(opts ...client.Option) (*client.Client, error)
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
	BuiltByFunc      func() string
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// ServerURL returns the server URL using the mock function or the local default.
func (m *Mock) ServerURL() string {
	if m.ServerURLFunc != nil {
		return m.ServerURLFunc()
	}
	return "http://localhost:8080"
}

// APIKey returns the API key using the mock function or "".
func (m *Mock) APIKey() string {
	if m.APIKeyFunc != nil {
		return m.APIKeyFunc()
	}
	return ""
}

// Client returns a client using the mock function, or a client for ServerURL
// authenticated with APIKey.
func (m *Mock) Client(opts ...client.Option) (*client.Client, error) {
	if m.ClientFunc != nil {
		return m.ClientFunc(opts...)
	}
	base := []client.Option{client.WithLogger(m.Logger())}
	if key := m.APIKey(); key != "" {
		base = append(base, client.WithAPIKey(key))
	}
	return client.New(m.ServerURL(), append(base, opts...)...)
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns commit using the mock function or "unknown".
func (m *Mock) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "unknown"
}

// Date returns date using the mock function or "unknown".
func (m *Mock) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "unknown"
}

// BuiltBy returns builtBy using the mock function or "test".
func (m *Mock) BuiltBy() string {
	if m.BuiltByFunc != nil {
		return m.BuiltByFunc()
	}
	return "test"
}

// Ensure Mock implements Application at compile time.
var _ Application = (*Mock)(nil)
