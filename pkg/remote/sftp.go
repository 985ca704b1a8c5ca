package remote

import (
	"context"
	"errors"

	"github.com/marmos91/dittosftp/internal/telemetry"
)

// ErrEmptyCredentials is returned when a username or password is blank.
var ErrEmptyCredentials = errors.New("username and password are required")

// AuthRequest is the body of an SFTP credential check.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse identifies the server a set of credentials grants access to.
type AuthResponse struct {
	Server string `json:"server"`
	Token  string `json:"token"`
}

// PermissionRequest asks whether token carries permission on server.
type PermissionRequest struct {
	Server     string `json:"server"`
	Token      string `json:"token"`
	Permission string `json:"permission"`
}

// PermissionResponse is the panel's answer to a PermissionRequest.
type PermissionResponse struct {
	Allowed bool `json:"allowed"`
}

// Authenticate validates SFTP credentials against the panel.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthResponse, error) {
	if username == "" || password == "" {
		return nil, ErrEmptyCredentials
	}

	ctx, span := telemetry.StartClientSpan(ctx, telemetry.SpanRemoteAuth, telemetry.Username(username))
	defer span.End()

	var resp AuthResponse
	if err := c.post(ctx, "/api/remote/sftp/auth", AuthRequest{Username: username, Password: password}, &resp); err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	if resp.Server == "" {
		err := &APIError{StatusCode: 200, Message: "panel response did not name a server"}
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	telemetry.SetAttributes(ctx, telemetry.ServerID(resp.Server))
	return &resp, nil
}

// CheckPermission asks the panel whether token grants permission on server.
func (c *Client) CheckPermission(ctx context.Context, server, token, permission string) (bool, error) {
	ctx, span := telemetry.StartClientSpan(ctx, telemetry.SpanRemotePermission,
		telemetry.ServerID(server), telemetry.Capability(permission))
	defer span.End()

	var resp PermissionResponse
	err := c.post(ctx, "/api/remote/sftp/permissions", PermissionRequest{
		Server:     server,
		Token:      token,
		Permission: permission,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsAuthError() {
			return false, nil
		}
		telemetry.RecordError(ctx, err)
		return false, err
	}

	return resp.Allowed, nil
}
