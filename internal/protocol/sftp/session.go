package sftp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	gosftp "github.com/pkg/sftp"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/dittosftp/internal/logger"
	"github.com/marmos91/dittosftp/internal/telemetry"
	"github.com/marmos91/dittosftp/pkg/filesystem"
	"github.com/marmos91/dittosftp/pkg/metrics"
)

// Filesystem is the tenant filesystem facade used by the handlers.
// *filesystem.Filesystem implements it.
type Filesystem interface {
	Stat(path string) (os.FileInfo, error)
	ReadRange(path string, off int64, length int) ([]byte, bool, error)
	ReadDir(path string) ([]os.FileInfo, error)
	OpenWrite(path string, mode filesystem.WriteMode) (afero.File, error)
	Chmod(path string, mode os.FileMode) error
	Chown(path string) error
	Mkdirp(path string) error
	Move(from, to string) error
	Remove(path string) error
}

// Tenant is the server a session is bound to.
type Tenant interface {
	ID() string
	// UID is reported as both uid and gid on every attribute.
	UID() int
	HasPermission(ctx context.Context, capability, token string) bool
	// OverQuota reports whether tracked disk usage exceeds a non-zero quota.
	OverQuota() bool
	FS() Filesystem
}

// TenantLookup resolves a tenant id. Sessions call it on every operation and
// never keep the tenant itself.
type TenantLookup func(id string) (Tenant, bool)

// Config describes an authenticated session.
type Config struct {
	RequestID string
	ServerID  string
	Token     string
	Username  string
	ClientIP  string

	// ReadOnly rejects every mutation with PERMISSION_DENIED.
	ReadOnly bool

	Lookup  TenantLookup
	Metrics metrics.SFTPMetrics
}

// Session is the per-connection state behind a pkg/sftp RequestServer: the
// bound tenant, the capability token, open handles and the path queue.
type Session struct {
	cfg     Config
	handles *HandleTable
	queue   *PathQueue
	metrics metrics.SFTPMetrics

	// base carries the session's LogContext and span; request contexts
	// from pkg/sftp are decorated with both.
	base context.Context
}

// NewSession creates a session. ctx should carry the connection's
// LogContext and span.
func NewSession(ctx context.Context, cfg Config) *Session {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopSFTPMetrics()
	}

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(cfg.ClientIP)
	} else {
		lc = lc.Clone()
	}
	lc = lc.WithSession(cfg.Username, cfg.ServerID, cfg.RequestID)

	return &Session{
		cfg:     cfg,
		handles: NewHandleTable(),
		queue:   NewPathQueue(),
		metrics: cfg.Metrics,
		base:    logger.WithContext(ctx, lc),
	}
}

// RequestID returns the session's correlation id.
func (s *Session) RequestID() string { return s.cfg.RequestID }

// ServerID returns the id of the bound tenant.
func (s *Session) ServerID() string { return s.cfg.ServerID }

// Handles exposes the session's handle table.
func (s *Session) Handles() *HandleTable { return s.handles }

// Handlers returns the pkg/sftp handler set backed by this session.
func (s *Session) Handlers() gosftp.Handlers {
	return gosftp.Handlers{
		FileGet:  s,
		FilePut:  s,
		FileCmd:  s,
		FileList: s,
	}
}

// Close releases every handle still open. No responses are sent; the
// connection is already gone.
func (s *Session) Close() {
	var chown Chowner
	if t, ok := s.tenant(); ok {
		chown = t.FS()
	}
	if n := s.handles.ReleaseAll(s.base, chown); n > 0 {
		logger.DebugCtx(s.base, "Released handles at session end", "handles", n)
	}
}

func (s *Session) tenant() (Tenant, bool) {
	if s.cfg.Lookup == nil {
		return nil, false
	}
	return s.cfg.Lookup(s.cfg.ServerID)
}

func (s *Session) require(ctx context.Context, t Tenant, capability string) error {
	if t.HasPermission(ctx, capability, s.cfg.Token) {
		return nil
	}
	return denied(capability)
}

func (s *Session) writable() error {
	if s.cfg.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// opContext decorates a pkg/sftp request context with the session's log
// context and span.
func (s *Session) opContext(reqCtx context.Context, op string) context.Context {
	if reqCtx == nil {
		reqCtx = context.Background()
	}
	ctx := trace.ContextWithSpan(reqCtx, trace.SpanFromContext(s.base))
	lc := logger.FromContext(s.base)
	if lc == nil {
		return ctx
	}
	return logger.WithContext(ctx, lc.WithProcedure(op))
}

// run executes fn for op while holding path in the queue, then records the
// outcome and maps the error for pkg/sftp.
func (s *Session) run(reqCtx context.Context, op, path string, fn func(ctx context.Context, t Tenant) error, attrs ...attribute.KeyValue) error {
	start := time.Now()
	ctx := s.opContext(reqCtx, op)
	ctx, span := telemetry.StartSFTPSpan(ctx, op, path, attrs...)
	defer span.End()
	if lc := logger.FromContext(ctx); lc != nil && telemetry.IsEnabled() {
		ctx = logger.WithContext(ctx, lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx)))
	}

	s.metrics.RecordRequestStart(op)
	defer s.metrics.RecordRequestEnd(op)

	err := s.queue.Enqueue(ctx, path, func() error {
		t, ok := s.tenant()
		if !ok {
			return fmt.Errorf("%w: %s", ErrTenantUnavailable, s.cfg.ServerID)
		}
		return fn(ctx, t)
	})

	status := statusOf(err)
	s.metrics.RecordRequest(op, status.String(), time.Since(start))
	telemetry.SetAttributes(ctx, telemetry.SFTPStatus(status.String()))
	s.report(ctx, op, path, status, err)

	return mapError(err)
}

func (s *Session) report(ctx context.Context, op, path string, status StatusCode, err error) {
	var fault *PanicError
	switch {
	case errors.As(err, &fault):
		s.metrics.RecordInternalFault(op)
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "Internal fault handling sftp request",
			logger.Path(path),
			"panic", fmt.Sprint(fault.Value),
			"stack", string(fault.Stack))

	case status == StatusFailure && !isTermination(err):
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "SFTP operation failed",
			logger.Path(path), logger.Err(err))

	case logger.IsDebug():
		args := []any{
			logger.Path(path),
			logger.Status(status.String()),
			logger.DurationMs(logger.FromContext(ctx).DurationMs()),
		}
		if err != nil && status != StatusEOF {
			args = append(args, logger.Err(err))
		}
		logger.DebugCtx(ctx, "SFTP operation", args...)
	}
}
