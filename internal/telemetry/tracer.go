package telemetry

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to SFTP spans.
const (
	AttrClientIP   = "client.ip"
	AttrUsername   = "user.name"
	AttrAuth       = "auth.method"
	AttrServerID   = "tenant.id"
	AttrRequestID  = "session.request_id"
	AttrCapability = "tenant.capability"

	AttrSFTPMethod = "sftp.method"
	AttrSFTPPath   = "sftp.path"
	AttrSFTPTarget = "sftp.target"
	AttrSFTPHandle = "sftp.handle"
	AttrSFTPFlags  = "sftp.flags"
	AttrSFTPOffset = "sftp.offset"
	AttrSFTPCount  = "sftp.count"
	AttrSFTPStatus = "sftp.status"
	AttrSFTPEOF    = "sftp.eof"
)

// Span names.
// Format: <component>.<operation>
const (
	SpanSSHHandshake = "ssh.handshake"
	SpanSSHSession   = "ssh.session"

	// SpanSFTPPrefix is joined with the pkg/sftp method name (Get, Put, Stat, ...)
	SpanSFTPPrefix = "sftp."

	SpanRemoteAuth       = "remote.auth"
	SpanRemotePermission = "remote.permission"

	SpanDiskUsage = "tenant.disk_usage"
)

// ClientIP returns an attribute for the client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// Username returns an attribute for the SSH username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// AuthMethod returns an attribute for the SSH authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// ServerID returns an attribute for the tenant identifier
func ServerID(id string) attribute.KeyValue {
	return attribute.String(AttrServerID, id)
}

// RequestID returns an attribute for the session correlation id
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// SFTPPath returns an attribute for the request path
func SFTPPath(path string) attribute.KeyValue {
	return attribute.String(AttrSFTPPath, path)
}

// SFTPTarget returns an attribute for the rename/link target
func SFTPTarget(path string) attribute.KeyValue {
	return attribute.String(AttrSFTPTarget, path)
}

// SFTPHandle returns an attribute for a handle id
func SFTPHandle(id uint64) attribute.KeyValue {
	return attribute.String(AttrSFTPHandle, strconv.FormatUint(id, 10))
}

// SFTPFlags returns an attribute for raw open flags
func SFTPFlags(flags uint32) attribute.KeyValue {
	return attribute.Int64(AttrSFTPFlags, int64(flags))
}

// SFTPOffset returns an attribute for an I/O offset
func SFTPOffset(offset int64) attribute.KeyValue {
	return attribute.Int64(AttrSFTPOffset, offset)
}

// SFTPCount returns an attribute for an I/O byte count
func SFTPCount(count int) attribute.KeyValue {
	return attribute.Int(AttrSFTPCount, count)
}

// Capability returns an attribute for a permission capability
func Capability(name string) attribute.KeyValue {
	return attribute.String(AttrCapability, name)
}

// SFTPStatus returns an attribute for the SFTP status name
func SFTPStatus(status string) attribute.KeyValue {
	return attribute.String(AttrSFTPStatus, status)
}

// SFTPEOF returns an attribute for the end-of-data indicator
func SFTPEOF(eof bool) attribute.KeyValue {
	return attribute.Bool(AttrSFTPEOF, eof)
}

// StartSFTPSpan starts a span for one SFTP operation.
// The span is named "sftp.<method>" and carries the method and path.
func StartSFTPSpan(ctx context.Context, method, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(AttrSFTPMethod, method),
		SFTPPath(path),
	)
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanSFTPPrefix+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(allAttrs...),
	)
}

// StartClientSpan starts a span for an outbound call to the control plane.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}
