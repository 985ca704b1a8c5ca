package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently so that
// session logs can be correlated and queried.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyProcedure  = "procedure"  // SFTP method: Get, Put, Stat, List, Rename, ...
	KeyHandle     = "handle"     // Session-scoped handle identifier
	KeyStatus     = "status"     // SFTP status name (OK, EOF, FAILURE, ...)
	KeyFlags      = "flags"      // Raw SSH_FXP_OPEN pflags
	KeyOpenMode   = "open_mode"  // Decoded open intent (r, w, wx, a, r+, ...)
	KeyCapability = "capability" // Capability string checked against the control plane

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath    = "path"
	KeyOldPath = "old_path"
	KeyNewPath = "new_path"
	KeySize    = "size"
	KeyMode    = "mode"

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"
	KeyCount        = "count"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"
	KeyEOF          = "eof"
	KeyEntries      = "entries"

	// ========================================================================
	// Client & Session
	// ========================================================================
	KeyClientIP  = "client_ip"
	KeyUsername  = "username"
	KeyServer    = "server"     // Tenant identifier
	KeyRequestID = "request_id" // Session correlation id
	KeyAuth      = "auth"       // SSH authentication method

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyQuota      = "quota"
	KeyDiskUsed   = "disk_used"
)

// Path returns a slog.Attr for a sandbox path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// OldPath returns a slog.Attr for the source of a rename
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for the destination of a rename
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// Handle returns a slog.Attr for a handle identifier
func Handle(id uint64) slog.Attr {
	return slog.Uint64(KeyHandle, id)
}

// Procedure returns a slog.Attr for the SFTP method
func Procedure(name string) slog.Attr {
	return slog.String(KeyProcedure, name)
}

// Status returns a slog.Attr for the SFTP status name
func Status(name string) slog.Attr {
	return slog.String(KeyStatus, name)
}

// Flags returns a slog.Attr for raw open flags, rendered in hex
func Flags(raw uint32) slog.Attr {
	return slog.String(KeyFlags, fmt.Sprintf("%#x", raw))
}

// Capability returns a slog.Attr for a checked capability
func Capability(c string) slog.Attr {
	return slog.String(KeyCapability, c)
}

// Offset returns a slog.Attr for a file offset
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// Count returns a slog.Attr for a requested byte count
func Count(c int) slog.Attr {
	return slog.Int(KeyCount, c)
}

// Entries returns a slog.Attr for a directory entry count
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Username returns a slog.Attr for the SSH username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// Server returns a slog.Attr for the tenant identifier
func Server(id string) slog.Attr {
	return slog.String(KeyServer, id)
}

// RequestID returns a slog.Attr for the session correlation id
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
