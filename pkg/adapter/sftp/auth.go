package sftp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/ssh"

	"github.com/marmos91/dittosftp/internal/logger"
	"github.com/marmos91/dittosftp/internal/telemetry"
	"github.com/marmos91/dittosftp/pkg/adapter"
	"github.com/marmos91/dittosftp/pkg/remote"
)

// Keys under ssh.Permissions.Extensions carrying the authenticated session.
const (
	extServerID  = "dittosftp-server-id"
	extToken     = "dittosftp-token"
	extRequestID = "dittosftp-request-id"
)

// Auth attempt results reported to metrics.
const (
	authSuccess           = "success"
	authRejected          = "rejected"
	authError             = "error"
	authUnsupportedMethod = "unsupported_method"
)

// RemoteAuthenticator checks passwords against the control plane.
type RemoteAuthenticator struct {
	client *remote.Client
}

// NewRemoteAuthenticator wraps client as an adapter.PasswordAuthenticator.
func NewRemoteAuthenticator(client *remote.Client) *RemoteAuthenticator {
	return &RemoteAuthenticator{client: client}
}

// Authenticate implements adapter.PasswordAuthenticator. Any answer from the
// control plane other than success is reported as ErrAuthenticationRejected.
func (a *RemoteAuthenticator) Authenticate(ctx context.Context, username, password string) (*adapter.AuthResult, error) {
	resp, err := a.client.Authenticate(ctx, username, password)
	if err != nil {
		var apiErr *remote.APIError
		if errors.As(err, &apiErr) || errors.Is(err, remote.ErrEmptyCredentials) {
			return nil, fmt.Errorf("%w: %w", adapter.ErrAuthenticationRejected, err)
		}
		return nil, err
	}
	return &adapter.AuthResult{ServerID: resp.Server, Token: resp.Token}, nil
}

// passwordCallback authenticates one password attempt. The returned
// permissions carry everything the session needs so nothing is looked up
// twice.
func (s *SFTPAdapter) passwordCallback(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	lc := logger.NewLogContext(hostOf(meta.RemoteAddr()))
	lc.Username = meta.User()
	ctx := logger.WithContext(s.ShutdownCtx, lc)

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSSHHandshake,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			telemetry.ClientIP(lc.ClientIP),
			telemetry.Username(meta.User()),
			telemetry.AuthMethod("password"),
		))
	defer span.End()

	result, err := s.auth.Authenticate(ctx, meta.User(), string(password))
	if err != nil {
		telemetry.RecordError(ctx, err)
		if errors.Is(err, adapter.ErrAuthenticationRejected) {
			s.metrics.RecordAuthAttempt(authRejected)
			logger.WarnCtx(ctx, "Authentication rejected by control plane", "error", err)
			return nil, adapter.ErrAuthenticationRejected
		}
		s.metrics.RecordAuthAttempt(authError)
		logger.WarnCtx(ctx, "Authentication request failed", "error", err)
		return nil, err
	}

	srv, ok := s.registry.Get(result.ServerID)
	if !ok || srv.Suspended() {
		s.metrics.RecordAuthAttempt(authRejected)
		logger.WarnCtx(ctx, "Authenticated for unavailable server",
			logger.KeyServer, result.ServerID, "known", ok)
		return nil, adapter.ErrTenantUnavailable
	}

	requestID := uuid.NewString()
	telemetry.SetAttributes(ctx, telemetry.ServerID(result.ServerID), telemetry.RequestID(requestID))
	s.metrics.RecordAuthAttempt(authSuccess)
	logger.InfoCtx(ctx, "SFTP user authenticated",
		logger.KeyServer, result.ServerID, logger.KeyRequestID, requestID)

	return &ssh.Permissions{
		Extensions: map[string]string{
			extServerID:  result.ServerID,
			extToken:     result.Token,
			extRequestID: requestID,
		},
	}, nil
}

// publicKeyCallback advertises publickey so clients offer their keys, then
// refuses every one of them. Only passwords authenticate.
func (s *SFTPAdapter) publicKeyCallback(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	s.rejectMethod(meta, "publickey", key.Type())
	return nil, adapter.ErrUnsupportedAuthMethod
}

// authLogCallback sees every attempt, including methods ssh rejects on its
// own because no callback is configured for them.
func (s *SFTPAdapter) authLogCallback(meta ssh.ConnMetadata, method string, err error) {
	switch method {
	case "password", "none", "publickey":
		return
	}
	s.rejectMethod(meta, method, fmt.Sprint(err))
}

func (s *SFTPAdapter) rejectMethod(meta ssh.ConnMetadata, method, detail string) {
	s.metrics.RecordAuthAttempt(authUnsupportedMethod)
	logger.Debug("Rejected unsupported authentication method",
		logger.KeyClientIP, hostOf(meta.RemoteAddr()),
		logger.KeyUsername, meta.User(),
		logger.KeyAuth, method,
		"detail", detail)
}

// hostOf strips the port from addr.
func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
