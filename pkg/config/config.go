package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
// Example: DITTOSFTP_SFTP_PORT=2022
const EnvPrefix = "DITTOSFTP"

// Config represents the dittosftp configuration.
//
// This structure captures the static configuration of the gateway:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Metrics and health HTTP server
//   - SFTP listener settings (address, host key, limits, timeouts)
//   - Control plane connection (remote auth and permission checks)
//   - Tenant definitions directory and caches
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOSFTP_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// SFTP contains the SSH/SFTP listener configuration
	SFTP SFTPConfig `mapstructure:"sftp" yaml:"sftp"`

	// Remote configures the control plane used for authentication and
	// permission checks
	Remote RemoteConfig `mapstructure:"remote" yaml:"remote"`

	// Tenants configures where tenant definitions are loaded from
	Tenants TenantsConfig `mapstructure:"tenants" yaml:"tenants"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	// Default: true
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics and health HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics and /health
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// SFTPConfig configures the SSH listener that serves the sftp subsystem.
type SFTPConfig struct {
	// BindAddress is the IP address to bind to ("" or "0.0.0.0" for all interfaces)
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address"`

	// Port is the TCP port to listen on
	// Default: 2022
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// HostKeyPath is the PEM encoded private host key
	// Default: $XDG_CONFIG_HOME/dittosftp/ssh_host_ed25519_key
	HostKeyPath string `mapstructure:"host_key_path" validate:"required" yaml:"host_key_path"`

	// GenerateHostKey creates an ed25519 host key at HostKeyPath when missing
	// Default: true
	GenerateHostKey *bool `mapstructure:"generate_host_key" yaml:"generate_host_key"`

	// MaxConnections limits concurrent TCP connections (0 = unlimited)
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// MaxConnectionsPerIP limits concurrent connections from one client
	// address (0 = unlimited)
	MaxConnectionsPerIP int `mapstructure:"max_connections_per_ip" validate:"gte=0" yaml:"max_connections_per_ip"`

	// MaxAuthTries is the number of password attempts allowed per connection
	// Default: 3
	MaxAuthTries int `mapstructure:"max_auth_tries" validate:"gte=0" yaml:"max_auth_tries"`

	// IdleTimeout closes connections that send nothing for this long (0 = never)
	// Default: 15m
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`

	// ShutdownTimeout bounds how long active sessions are given to finish
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// ReadOnly rejects every mutating request with PERMISSION_DENIED
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`
}

// RemoteConfig configures the control plane client.
type RemoteConfig struct {
	// URL is the base URL of the control plane (e.g. https://panel.example.com)
	URL string `mapstructure:"url" validate:"required,url" yaml:"url"`

	// Token is the node-wide bearer key presented on every remote call
	Token string `mapstructure:"token" validate:"required" yaml:"token"`

	// Timeout bounds a single remote call
	// Default: 15s
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`
}

// TenantsConfig configures tenant definitions and related caches.
type TenantsConfig struct {
	// Dir holds one YAML file per tenant
	// Default: $XDG_CONFIG_HOME/dittosftp/servers
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`

	// Watch reloads the registry when files in Dir change
	// Default: true
	Watch *bool `mapstructure:"watch" yaml:"watch"`

	// PermissionCacheTTL is how long a permission decision is reused
	// (0 disables caching)
	// Default: 30s
	PermissionCacheTTL time.Duration `mapstructure:"permission_cache_ttl" validate:"gte=0" yaml:"permission_cache_ttl"`

	// PermissionCacheSize bounds the memory used by cached decisions
	// Supports human-readable sizes: "8MiB", "1MB"
	// Default: 8MiB
	PermissionCacheSize ByteSize `mapstructure:"permission_cache_size" yaml:"permission_cache_size"`

	// DiskCheckInterval is how often tenant disk usage is recomputed
	// Default: 60s
	DiskCheckInterval time.Duration `mapstructure:"disk_check_interval" validate:"gt=0" yaml:"disk_check_interval"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOSFTP_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	bindEnvKeys(v)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittosftp config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittosftp <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittosftp config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file carries the control plane node token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every known key so that environment overrides apply
// even when the key is absent from the config file. AutomaticEnv alone only
// consults the environment for keys viper already knows about.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range configKeys(reflect.TypeOf(Config{}), "") {
		_ = v.BindEnv(key)
	}
}

// configKeys walks the mapstructure tags of t and returns dotted key paths.
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			keys = append(keys, configKeys(f.Type, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dittosftp, falling back to
// ~/.config/dittosftp, or "." when no home directory is available.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittosftp")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittosftp")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}

// GenerateHostKeyEnabled reports whether a missing host key is generated.
func (c SFTPConfig) GenerateHostKeyEnabled() bool {
	return c.GenerateHostKey == nil || *c.GenerateHostKey
}

// WatchEnabled reports whether tenant definitions are watched for changes.
func (c TenantsConfig) WatchEnabled() bool {
	return c.Watch == nil || *c.Watch
}
