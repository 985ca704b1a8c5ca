package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	gosftp "github.com/pkg/sftp"

	"github.com/marmos91/dittosftp/pkg/filesystem"
)

// StatusCode is an SFTP status as sent to the client.
type StatusCode uint32

const (
	StatusOK               StatusCode = 0
	StatusEOF              StatusCode = 1
	StatusNoSuchFile       StatusCode = 2
	StatusPermissionDenied StatusCode = 3
	StatusFailure          StatusCode = 4
	StatusOpUnsupported    StatusCode = 8
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusEOF:
		return "EOF"
	case StatusNoSuchFile:
		return "NO_SUCH_FILE"
	case StatusPermissionDenied:
		return "PERMISSION_DENIED"
	case StatusFailure:
		return "FAILURE"
	case StatusOpUnsupported:
		return "OP_UNSUPPORTED"
	default:
		return fmt.Sprintf("STATUS_%d", uint32(c))
	}
}

var (
	// ErrQuotaExceeded rejects a write from a tenant over its disk quota.
	// Clients see OP_UNSUPPORTED.
	ErrQuotaExceeded = errors.New("disk quota exceeded")

	// ErrUnsupported is returned for symlinks and undecodable open flags.
	ErrUnsupported = errors.New("operation not supported")

	// ErrPermissionDenied is returned when a capability check fails.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTenantUnavailable is returned when the session's tenant is no
	// longer registered.
	ErrTenantUnavailable = errors.New("tenant unavailable")

	// ErrReadOnly rejects mutations when the gateway runs read-only.
	ErrReadOnly = errors.New("gateway is read-only")

	errHandleClosed = errors.New("handle is closed")
)

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("internal fault: %v", e.Value)
}

func denied(capability string) error {
	return fmt.Errorf("%w: missing %s", ErrPermissionDenied, capability)
}

// statusOf classifies err into the status the client will receive.
func statusOf(err error) StatusCode {
	var fault *PanicError
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, io.EOF):
		return StatusEOF
	case errors.Is(err, fs.ErrNotExist):
		return StatusNoSuchFile
	case errors.As(err, &fault),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrTenantUnavailable),
		errors.Is(err, ErrReadOnly),
		errors.Is(err, filesystem.ErrOutsideSandbox):
		return StatusPermissionDenied
	case errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrUnsupported):
		return StatusOpUnsupported
	default:
		return StatusFailure
	}
}

// mapError converts err into the value pkg/sftp expects. io.EOF is passed
// through untouched because pkg/sftp checks for it by identity on reads and
// listings.
func mapError(err error) error {
	switch statusOf(err) {
	case StatusOK:
		return nil
	case StatusEOF:
		return io.EOF
	case StatusNoSuchFile:
		return gosftp.ErrSSHFxNoSuchFile
	case StatusPermissionDenied:
		return gosftp.ErrSSHFxPermissionDenied
	case StatusOpUnsupported:
		return gosftp.ErrSSHFxOpUnsupported
	default:
		return gosftp.ErrSSHFxFailure
	}
}

// isTermination reports whether err only reflects the session going away.
func isTermination(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// wireStatus recovers the status code from an error already passed through
// mapError.
func wireStatus(err error) StatusCode {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, io.EOF):
		return StatusEOF
	case errors.Is(err, gosftp.ErrSSHFxNoSuchFile):
		return StatusNoSuchFile
	case errors.Is(err, gosftp.ErrSSHFxPermissionDenied):
		return StatusPermissionDenied
	case errors.Is(err, gosftp.ErrSSHFxOpUnsupported):
		return StatusOpUnsupported
	default:
		return StatusFailure
	}
}
