package config

import (
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applySFTPDefaults(&cfg.SFTP)
	applyRemoteDefaults(&cfg.Remote)
	applyTenantsDefaults(&cfg.Tenants)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applySFTPDefaults sets listener defaults.
func applySFTPDefaults(cfg *SFTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = 2022
	}
	if cfg.HostKeyPath == "" {
		cfg.HostKeyPath = filepath.Join(getConfigDir(), "ssh_host_ed25519_key")
	}
	if cfg.MaxAuthTries == 0 {
		cfg.MaxAuthTries = 3
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 15 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyRemoteDefaults sets control plane client defaults.
func applyRemoteDefaults(cfg *RemoteConfig) {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
}

// applyTenantsDefaults sets tenant registry defaults.
func applyTenantsDefaults(cfg *TenantsConfig) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(getConfigDir(), "servers")
	}
	if cfg.PermissionCacheTTL == 0 {
		cfg.PermissionCacheTTL = 30 * time.Second
	}
	if cfg.PermissionCacheSize == 0 {
		cfg.PermissionCacheSize = 8 << 20
	}
	if cfg.DiskCheckInterval == 0 {
		cfg.DiskCheckInterval = 60 * time.Second
	}
}

// GetDefaultConfig returns a Config with all default values applied.
// The remote section is left empty; it has no meaningful default.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
