package adapter

import (
	"context"
)

// Adapter is the lifecycle contract of a protocol listener run by
// pkg/server.
//
// Stop may be called concurrently with Serve and more than once.
type Adapter interface {
	// Serve binds the listener and blocks until ctx is cancelled. On
	// cancellation it stops accepting, drains sessions up to the shutdown
	// timeout and force-closes the rest. It returns nil after a clean drain
	// and an error when binding fails or sessions had to be force-closed.
	Serve(ctx context.Context) error

	// Stop starts the same shutdown and waits for sessions until ctx is done.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs, e.g. "SFTP".
	Protocol() string

	// Port is the configured port. 0 means an ephemeral port was requested.
	Port() int

	// Ready reports whether the listener is bound and not shutting down.
	Ready() bool
}
