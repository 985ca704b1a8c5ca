// Package sftp implements the SFTP request handlers that sit between
// github.com/pkg/sftp's RequestServer and a tenant's filesystem.
//
// A Session is created per authenticated SSH connection. It owns a handle
// table and a per-path queue: every operation is enqueued under the path it
// touches, so operations on one path run one at a time in arrival order while
// operations on other paths proceed concurrently.
//
// Handlers never return raw filesystem errors to pkg/sftp. Every outcome is
// mapped onto the fixed status set OK, EOF, NO_SUCH_FILE, PERMISSION_DENIED,
// OP_UNSUPPORTED and FAILURE, and internal detail is only logged.
package sftp
