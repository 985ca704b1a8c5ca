package metrics

import (
	"time"
)

// SFTPMetrics provides observability for the SFTP gateway.
//
// Implementations collect request outcomes, throughput, session and
// connection lifecycle, and authentication results. Use NewNoopSFTPMetrics
// when metrics are disabled.
type SFTPMetrics interface {
	// RecordRequest records a completed SFTP operation.
	//
	// Parameters:
	//   - method: pkg/sftp method name (e.g., "Get", "Put", "Stat", "List")
	//   - status: SFTP status name returned to the client (e.g., "OK", "EOF", "FAILURE")
	//   - duration: Time spent in the handler, including time queued behind
	//     other operations on the same path
	RecordRequest(method string, status string, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge for method.
	RecordRequestStart(method string)

	// RecordRequestEnd decrements the in-flight gauge for method.
	RecordRequestEnd(method string)

	// RecordBytesTransferred records payload bytes.
	//
	// Parameters:
	//   - direction: "read" (download) or "write" (upload)
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes uint64)

	// RecordAuthAttempt records an authentication outcome
	// ("success", "rejected", "error", "unsupported_method").
	RecordAuthAttempt(result string)

	// RecordInternalFault records a handler panic recovered at the queue
	// boundary. The client only sees PERMISSION_DENIED for these.
	RecordInternalFault(method string)

	// RecordQuotaRejection records a write refused because the tenant is
	// over its disk quota.
	RecordQuotaRejection()

	// SetActiveSessions updates the number of authenticated sftp sessions.
	SetActiveSessions(count int32)

	// SetActiveConnections updates the current TCP connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the force-closed connections
	// counter. Called when connections outlive the shutdown timeout.
	RecordConnectionForceClosed()
}

// noopSFTPMetrics discards everything.
type noopSFTPMetrics struct{}

// NewNoopSFTPMetrics returns an SFTPMetrics that records nothing.
func NewNoopSFTPMetrics() SFTPMetrics {
	return noopSFTPMetrics{}
}

func (noopSFTPMetrics) RecordRequest(string, string, time.Duration) {}
func (noopSFTPMetrics) RecordRequestStart(string)                   {}
func (noopSFTPMetrics) RecordRequestEnd(string)                     {}
func (noopSFTPMetrics) RecordBytesTransferred(string, uint64)       {}
func (noopSFTPMetrics) RecordAuthAttempt(string)                    {}
func (noopSFTPMetrics) RecordInternalFault(string)                  {}
func (noopSFTPMetrics) RecordQuotaRejection()                       {}
func (noopSFTPMetrics) SetActiveSessions(int32)                     {}
func (noopSFTPMetrics) SetActiveConnections(int32)                  {}
func (noopSFTPMetrics) RecordConnectionAccepted()                   {}
func (noopSFTPMetrics) RecordConnectionClosed()                     {}
func (noopSFTPMetrics) RecordConnectionForceClosed()                {}
