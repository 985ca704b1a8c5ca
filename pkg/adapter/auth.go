package adapter

import (
	"context"
	"errors"
)

// AuthResult is the outcome of a successful password authentication.
type AuthResult struct {
	// ServerID identifies the tenant the credentials grant access to.
	ServerID string

	// Token is the capability token presented on every permission check
	// made on behalf of the session.
	Token string
}

// PasswordAuthenticator verifies a username and password.
//
// Implementations delegate to the control plane and must be safe for
// concurrent use across connections. They never retry: a failed attempt is
// reported to the client and the transport decides whether another attempt
// is allowed.
type PasswordAuthenticator interface {
	// Authenticate returns the tenant and token bound to the credentials.
	//
	// Returns:
	//   - result: non-nil on success
	//   - err: ErrAuthenticationRejected when the control plane refused the
	//     credentials, or a transport error when it could not be reached
	Authenticate(ctx context.Context, username, password string) (*AuthResult, error)
}

var (
	// ErrAuthenticationRejected is returned when the control plane refuses
	// the credentials.
	ErrAuthenticationRejected = errors.New("auth: credentials rejected")

	// ErrTenantUnavailable is returned when the credentials are valid but the
	// tenant they resolve to is unknown locally or suspended.
	ErrTenantUnavailable = errors.New("auth: tenant unavailable")

	// ErrUnsupportedAuthMethod is returned for every method other than
	// password.
	ErrUnsupportedAuthMethod = errors.New("auth: unsupported authentication method")
)
