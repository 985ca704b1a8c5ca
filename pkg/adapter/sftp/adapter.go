package sftp

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/crypto/ssh"

	protocol "github.com/marmos91/dittosftp/internal/protocol/sftp"
	"github.com/marmos91/dittosftp/pkg/adapter"
	"github.com/marmos91/dittosftp/pkg/metrics"
	"github.com/marmos91/dittosftp/pkg/tenant"
)

// SFTPAdapter serves the sftp subsystem over SSH.
//
// The TCP lifecycle (listener, connection limit, graceful shutdown) is
// delegated to the embedded BaseAdapter. SFTPAdapter adds the SSH handshake,
// password authentication against the control plane and one protocol
// Session per sftp channel.
//
// Thread safety:
// All methods are safe for concurrent use.
type SFTPAdapter struct {
	*adapter.BaseAdapter

	config    SFTPConfig
	sshConfig *ssh.ServerConfig
	hostKey   ssh.Signer

	auth     adapter.PasswordAuthenticator
	registry *tenant.Registry
	metrics  metrics.SFTPMetrics

	// sessions counts sftp subsystems currently being served.
	sessions atomic.Int32
}

var _ adapter.Adapter = (*SFTPAdapter)(nil)

// New creates a stopped SFTPAdapter. The host key is loaded (or generated)
// here so configuration errors surface before Serve.
//
// Parameters:
//   - config: Listener and SSH settings
//   - auth: Verifies passwords
//   - registry: Resolves the tenant named by a successful authentication
//   - m: Metrics sink (nil for no metrics)
func New(
	config SFTPConfig,
	auth adapter.PasswordAuthenticator,
	registry *tenant.Registry,
	m metrics.SFTPMetrics,
) (*SFTPAdapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid SFTP config: %w", err)
	}
	if m == nil {
		m = metrics.NewNoopSFTPMetrics()
	}

	signer, err := LoadOrGenerateHostKey(config.HostKeyPath, config.GenerateHostKey)
	if err != nil {
		return nil, fmt.Errorf("load host key: %w", err)
	}

	s := &SFTPAdapter{
		BaseAdapter: adapter.NewBaseAdapter(config.BaseConfig, "SFTP"),
		config:      config,
		hostKey:     signer,
		auth:        auth,
		registry:    registry,
		metrics:     m,
	}
	s.Metrics = m

	s.sshConfig = &ssh.ServerConfig{
		PasswordCallback:  s.passwordCallback,
		PublicKeyCallback: s.publicKeyCallback,
		AuthLogCallback:   s.authLogCallback,
		MaxAuthTries:      config.MaxAuthTries,
		ServerVersion:     config.ServerVersion,
	}
	s.sshConfig.AddHostKey(signer)

	return s, nil
}

// Serve accepts SSH connections until ctx is cancelled.
func (s *SFTPAdapter) Serve(ctx context.Context) error {
	return s.ServeWithFactory(ctx, s, nil)
}

// NewConnection implements adapter.ConnectionFactory.
func (s *SFTPAdapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return &SFTPConnection{adapter: s, conn: conn}
}

// ActiveSessions returns the number of sftp subsystems being served.
func (s *SFTPAdapter) ActiveSessions() int32 {
	return s.sessions.Load()
}

// HostKey returns the public half of the host key.
func (s *SFTPAdapter) HostKey() ssh.PublicKey {
	return s.hostKey.PublicKey()
}

func (s *SFTPAdapter) sessionStarted() {
	s.metrics.SetActiveSessions(s.sessions.Add(1))
}

func (s *SFTPAdapter) sessionEnded() {
	s.metrics.SetActiveSessions(s.sessions.Add(-1))
}

// lookupTenant resolves a tenant for a running session. A tenant that was
// removed or suspended since authentication is reported as missing.
func (s *SFTPAdapter) lookupTenant(id string) (protocol.Tenant, bool) {
	srv, ok := s.registry.Get(id)
	if !ok || srv.Suspended() {
		return nil, false
	}
	return tenantView{srv}, true
}

// tenantView adapts *tenant.Server to protocol.Tenant.
type tenantView struct {
	*tenant.Server
}

func (t tenantView) FS() protocol.Filesystem {
	return t.Filesystem()
}
