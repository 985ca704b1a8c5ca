package prometheus

import (
	"time"

	"github.com/marmos91/dittosftp/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sftpMetrics is the Prometheus implementation of metrics.SFTPMetrics.
type sftpMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       *prometheus.GaugeVec
	bytesTransferred       *prometheus.CounterVec
	authAttempts           *prometheus.CounterVec
	internalFaults         *prometheus.CounterVec
	quotaRejections        prometheus.Counter
	activeSessions         prometheus.Gauge
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewSFTPMetrics creates a Prometheus-backed SFTPMetrics registered on the
// global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewSFTPMetrics() metrics.SFTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopSFTPMetrics()
	}
	return NewSFTPMetricsWith(metrics.GetRegistry())
}

// NewSFTPMetricsWith registers the SFTP collectors on reg.
func NewSFTPMetricsWith(reg prometheus.Registerer) metrics.SFTPMetrics {
	f := promauto.With(reg)

	return &sftpMetrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosftp_sftp_requests_total",
				Help: "Total number of SFTP requests by method and returned status",
			},
			[]string{"method", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittosftp_sftp_request_duration_seconds",
				Help:    "Duration of SFTP requests, including per-path queueing",
				Buckets: []float64{0.001, 0.01, 0.1, 1, 10},
			},
			[]string{"method"},
		),
		requestsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittosftp_sftp_requests_in_flight",
				Help: "Current number of SFTP requests being processed",
			},
			[]string{"method"},
		),
		bytesTransferred: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosftp_sftp_bytes_transferred_total",
				Help: "Total payload bytes transferred over SFTP",
			},
			[]string{"direction"},
		),
		authAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosftp_ssh_auth_attempts_total",
				Help: "SSH authentication attempts by result",
			},
			[]string{"result"},
		),
		internalFaults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosftp_sftp_internal_faults_total",
				Help: "Handler panics recovered and reported to clients as PERMISSION_DENIED",
			},
			[]string{"method"},
		),
		quotaRejections: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dittosftp_sftp_quota_rejections_total",
				Help: "Writes rejected because the tenant exceeded its disk quota",
			},
		),
		activeSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittosftp_sftp_active_sessions",
				Help: "Current number of authenticated SFTP sessions",
			},
		),
		activeConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittosftp_ssh_active_connections",
				Help: "Current number of open SSH connections",
			},
		),
		connectionsAccepted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dittosftp_ssh_connections_accepted_total",
				Help: "Total number of SSH connections accepted",
			},
		),
		connectionsClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dittosftp_ssh_connections_closed_total",
				Help: "Total number of SSH connections closed",
			},
		),
		connectionsForceClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dittosftp_ssh_connections_force_closed_total",
				Help: "Total number of SSH connections force-closed during shutdown timeout",
			},
		),
	}
}

func (m *sftpMetrics) RecordRequest(method string, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *sftpMetrics) RecordRequestStart(method string) {
	m.requestsInFlight.WithLabelValues(method).Inc()
}

func (m *sftpMetrics) RecordRequestEnd(method string) {
	m.requestsInFlight.WithLabelValues(method).Dec()
}

func (m *sftpMetrics) RecordBytesTransferred(direction string, bytes uint64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *sftpMetrics) RecordAuthAttempt(result string) {
	m.authAttempts.WithLabelValues(result).Inc()
}

func (m *sftpMetrics) RecordInternalFault(method string) {
	m.internalFaults.WithLabelValues(method).Inc()
}

func (m *sftpMetrics) RecordQuotaRejection() {
	m.quotaRejections.Inc()
}

func (m *sftpMetrics) SetActiveSessions(count int32) {
	m.activeSessions.Set(float64(count))
}

func (m *sftpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *sftpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *sftpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *sftpMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
