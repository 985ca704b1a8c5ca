package config

import (
	"github.com/marmos91/dittosftp/pkg/metrics"
	promMetrics "github.com/marmos91/dittosftp/pkg/metrics/prometheus"
)

// MetricsResult contains the metrics components created from configuration.
type MetricsResult struct {
	// Enabled mirrors metrics.enabled.
	Enabled bool

	// Port is the HTTP port for /metrics and /health.
	Port int

	// SFTPMetrics is the collector for the SFTP adapter (never nil, uses noop if disabled)
	SFTPMetrics metrics.SFTPMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// If metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned. Otherwise no-op collectors are
// returned (zero overhead).
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{SFTPMetrics: metrics.NewNoopSFTPMetrics()}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Enabled:     true,
		Port:        cfg.Metrics.Port,
		SFTPMetrics: promMetrics.NewSFTPMetrics(),
	}
}

// NewServer builds the metrics HTTP server, or returns nil when metrics are
// disabled.
func (r *MetricsResult) NewServer(health metrics.HealthSource) *metrics.Server {
	if r == nil || !r.Enabled {
		return nil
	}
	return metrics.NewServer(metrics.ServerConfig{Port: r.Port}, health)
}
