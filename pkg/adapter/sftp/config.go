package sftp

import (
	"fmt"
	"time"

	"github.com/marmos91/dittosftp/pkg/adapter"
)

// DefaultServerVersion is the identification string sent during the SSH
// handshake.
const DefaultServerVersion = "SSH-2.0-dittosftp"

// SFTPConfig holds configuration for the SSH listener serving the sftp
// subsystem.
//
// Default values (applied by New if zero):
//   - MaxAuthTries: 3
//   - ShutdownTimeout: 30s
//   - ServerVersion: DefaultServerVersion
type SFTPConfig struct {
	adapter.BaseConfig

	// HostKeyPath is the PEM encoded private host key.
	HostKeyPath string

	// GenerateHostKey creates an ed25519 key at HostKeyPath when it is missing.
	GenerateHostKey bool

	// MaxAuthTries is the number of authentication attempts allowed per
	// connection before ssh drops it.
	MaxAuthTries int

	// IdleTimeout closes a connection after this long without traffic in
	// either direction. 0 disables it.
	IdleTimeout time.Duration

	// ReadOnly rejects every mutating request.
	ReadOnly bool

	// ServerVersion overrides the SSH identification string.
	ServerVersion string
}

func (c *SFTPConfig) applyDefaults() {
	if c.MaxAuthTries == 0 {
		c.MaxAuthTries = 3
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ServerVersion == "" {
		c.ServerVersion = DefaultServerVersion
	}
}

func (c *SFTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max_connections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxConnectionsPerIP < 0 {
		return fmt.Errorf("invalid max_connections_per_ip %d: must be >= 0", c.MaxConnectionsPerIP)
	}
	if c.MaxAuthTries < 0 {
		return fmt.Errorf("invalid max_auth_tries %d: must be >= 0", c.MaxAuthTries)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid idle_timeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.HostKeyPath == "" {
		return fmt.Errorf("host_key_path is required")
	}
	return nil
}
