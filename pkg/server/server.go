// Package server wires the gateway together: the tenant registry and its
// watchers, the control plane client, the SFTP adapter and the metrics
// server.
package server

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittosftp/internal/logger"
	"github.com/marmos91/dittosftp/pkg/adapter"
	sftpadapter "github.com/marmos91/dittosftp/pkg/adapter/sftp"
	"github.com/marmos91/dittosftp/pkg/config"
	"github.com/marmos91/dittosftp/pkg/metrics"
	"github.com/marmos91/dittosftp/pkg/remote"
	"github.com/marmos91/dittosftp/pkg/tenant"
)

// Server runs every long-lived component of the gateway under one errgroup.
// The first component to fail cancels the others.
type Server struct {
	cfg *config.Config

	registry *tenant.Registry
	loader   *tenant.Loader
	tracker  *tenant.DiskTracker
	perms    *tenant.CachedChecker

	sftp    *sftpadapter.SFTPAdapter
	metrics *metrics.Server
}

var _ metrics.HealthSource = (*Server)(nil)

// New builds a stopped Server. Tenant definitions are loaded once here so a
// broken tenants directory fails startup instead of the first login.
//
// m may be nil, in which case metrics are disabled.
func New(cfg *config.Config, m *config.MetricsResult) (*Server, error) {
	if m == nil {
		m = &config.MetricsResult{SFTPMetrics: metrics.NewNoopSFTPMetrics()}
	}

	client := remote.New(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.Timeout)

	perms, err := tenant.NewCachedChecker(client,
		cfg.Tenants.PermissionCacheTTL, cfg.Tenants.PermissionCacheSize.Int64())
	if err != nil {
		return nil, err
	}

	registry := tenant.NewRegistry()
	loader := tenant.NewLoader(cfg.Tenants.Dir, registry, perms)
	if err := loader.Load(); err != nil {
		perms.Close()
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}

	sftp, err := sftpadapter.New(sftpadapter.SFTPConfig{
		BaseConfig: adapter.BaseConfig{
			BindAddress:         cfg.SFTP.BindAddress,
			Port:                cfg.SFTP.Port,
			MaxConnections:      cfg.SFTP.MaxConnections,
			MaxConnectionsPerIP: cfg.SFTP.MaxConnectionsPerIP,
			ShutdownTimeout:     cfg.SFTP.ShutdownTimeout,
		},
		HostKeyPath:     cfg.SFTP.HostKeyPath,
		GenerateHostKey: cfg.SFTP.GenerateHostKeyEnabled(),
		MaxAuthTries:    cfg.SFTP.MaxAuthTries,
		IdleTimeout:     cfg.SFTP.IdleTimeout,
		ReadOnly:        cfg.SFTP.ReadOnly,
	}, sftpadapter.NewRemoteAuthenticator(client), registry, m.SFTPMetrics)
	if err != nil {
		perms.Close()
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		loader:   loader,
		tracker:  tenant.NewDiskTracker(registry, cfg.Tenants.DiskCheckInterval),
		perms:    perms,
		sftp:     sftp,
	}
	s.metrics = m.NewServer(s)

	logger.Info("Tenants loaded", "count", registry.Len(), "dir", loader.Dir())
	return s, nil
}

// Serve runs the gateway until ctx is cancelled or a component fails.
// Returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer s.perms.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.sftp.Serve(gctx)
	})

	if s.metrics != nil {
		g.Go(func() error {
			return s.metrics.Start(gctx)
		})
	}

	if s.cfg.Tenants.WatchEnabled() {
		g.Go(func() error {
			return s.loader.Watch(gctx)
		})
	}

	g.Go(func() error {
		return s.tracker.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop asks the SFTP adapter to drain its sessions. Serve returns once the
// caller's context is also cancelled.
func (s *Server) Stop(ctx context.Context) error {
	return s.sftp.Stop(ctx)
}

// Registry exposes the tenant registry.
func (s *Server) Registry() *tenant.Registry { return s.registry }

// Adapter exposes the SFTP adapter.
func (s *Server) Adapter() *sftpadapter.SFTPAdapter { return s.sftp }

// Ready implements metrics.HealthSource.
func (s *Server) Ready() bool { return s.sftp.Ready() }

// TenantCount implements metrics.HealthSource.
func (s *Server) TenantCount() int { return s.registry.Len() }

// ActiveSessions implements metrics.HealthSource.
func (s *Server) ActiveSessions() int32 { return s.sftp.ActiveSessions() }
