package tenant

import (
	"context"
	"sync/atomic"

	"github.com/marmos91/dittosftp/internal/logger"
	"github.com/marmos91/dittosftp/pkg/filesystem"
)

// Capabilities checked by the sftp handlers.
const (
	CapabilityList     = "s:files:get"
	CapabilityDownload = "s:files:download"
	CapabilityUpload   = "s:files:upload"
	CapabilityCreate   = "s:files:create"
	CapabilityMove     = "s:files:move"
	CapabilityDelete   = "s:files:delete"
)

// PermissionChecker decides whether a session token carries a capability on
// a server.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, server, token, permission string) (bool, error)
}

// Server is a tenant: its filesystem, quota, and permission source.
//
// Thread safety: all methods are safe for concurrent use.
type Server struct {
	def   Definition
	fs    *filesystem.Filesystem
	perms PermissionChecker

	diskUsed atomic.Int64
}

// NewServer creates a tenant backed by the host directory in def.Root.
func NewServer(def Definition, perms PermissionChecker) *Server {
	return NewServerWithFilesystem(def, filesystem.New(def.Root, def.User, def.User), perms)
}

// NewServerWithFilesystem creates a tenant over an existing filesystem facade.
func NewServerWithFilesystem(def Definition, fs *filesystem.Filesystem, perms PermissionChecker) *Server {
	return &Server{def: def, fs: fs, perms: perms}
}

// ID returns the tenant identifier.
func (s *Server) ID() string { return s.def.ID }

// Root returns the host directory backing the tenant.
func (s *Server) Root() string { return s.def.Root }

// UID returns the numeric id used as owner and group for written files.
func (s *Server) UID() int { return s.def.User }

// Suspended reports whether the tenant is suspended.
func (s *Server) Suspended() bool { return s.def.Suspended }

// Definition returns a copy of the tenant definition.
func (s *Server) Definition() Definition { return s.def }

// Filesystem returns the tenant's filesystem facade.
func (s *Server) Filesystem() *filesystem.Filesystem { return s.fs }

// DiskQuota returns the quota in bytes, or 0 when unlimited.
func (s *Server) DiskQuota() int64 { return s.def.DiskQuotaBytes() }

// DiskUsed returns the last computed disk usage in bytes.
func (s *Server) DiskUsed() int64 { return s.diskUsed.Load() }

// SetDiskUsed records a freshly computed disk usage.
func (s *Server) SetDiskUsed(bytes int64) { s.diskUsed.Store(bytes) }

// OverQuota reports whether usage exceeds a non-zero quota.
func (s *Server) OverQuota() bool {
	quota := s.DiskQuota()
	return quota > 0 && s.DiskUsed() > quota
}

// HasPermission reports whether token grants capability on this tenant.
// Suspended tenants and checker failures deny.
func (s *Server) HasPermission(ctx context.Context, capability, token string) bool {
	if s.def.Suspended || s.perms == nil {
		return false
	}

	allowed, err := s.perms.CheckPermission(ctx, s.def.ID, token, capability)
	if err != nil {
		logger.WarnCtx(ctx, "Permission check failed",
			logger.Server(s.def.ID), logger.Capability(capability), logger.Err(err))
		return false
	}
	return allowed
}
