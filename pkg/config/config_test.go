package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are escape sequences.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_MinimalConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
remote:
  url: "https://panel.example.com/"
  token: "node-key"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 2022, cfg.SFTP.Port)
	assert.Equal(t, 3, cfg.SFTP.MaxAuthTries)
	assert.Equal(t, 15*time.Minute, cfg.SFTP.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.SFTP.ShutdownTimeout)
	assert.True(t, cfg.SFTP.GenerateHostKeyEnabled())
	assert.Equal(t, "https://panel.example.com", cfg.Remote.URL)
	assert.Equal(t, 15*time.Second, cfg.Remote.Timeout)
	assert.True(t, cfg.Tenants.WatchEnabled())
	assert.Equal(t, 30*time.Second, cfg.Tenants.PermissionCacheTTL)
	assert.Equal(t, ByteSize(8<<20), cfg.Tenants.PermissionCacheSize)
	assert.Equal(t, time.Minute, cfg.Tenants.DiskCheckInterval)
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
logging:
  level: debug
  format: json
sftp:
  bind_address: "127.0.0.1"
  port: 2222
  host_key_path: "`+yamlSafePath(dir)+`/host_key"
  generate_host_key: false
  max_connections: 64
  max_connections_per_ip: 4
  idle_timeout: 5m
  read_only: true
remote:
  url: "http://127.0.0.1:8080"
  token: "node-key"
  timeout: 3s
tenants:
  dir: "`+yamlSafePath(dir)+`/servers"
  watch: false
  permission_cache_ttl: 10s
  permission_cache_size: 1MiB
  disk_check_interval: 2m
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1", cfg.SFTP.BindAddress)
	assert.Equal(t, 2222, cfg.SFTP.Port)
	assert.False(t, cfg.SFTP.GenerateHostKeyEnabled())
	assert.Equal(t, 64, cfg.SFTP.MaxConnections)
	assert.Equal(t, 4, cfg.SFTP.MaxConnectionsPerIP)
	assert.Equal(t, 5*time.Minute, cfg.SFTP.IdleTimeout)
	assert.True(t, cfg.SFTP.ReadOnly)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.False(t, cfg.Tenants.WatchEnabled())
	assert.Equal(t, ByteSize(1<<20), cfg.Tenants.PermissionCacheSize)
	assert.Equal(t, 2*time.Minute, cfg.Tenants.DiskCheckInterval)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
remote:
  url: "https://panel.example.com"
  token: "from-file"
`)

	t.Setenv("DITTOSFTP_SFTP_PORT", "2200")
	t.Setenv("DITTOSFTP_REMOTE_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2200, cfg.SFTP.Port)
	assert.Equal(t, "from-env", cfg.Remote.Token)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "MissingRemote",
			content: "logging:\n  level: INFO\n",
			wantErr: "Remote.URL",
		},
		{
			name:    "InvalidLevel",
			content: "logging:\n  level: LOUD\nremote:\n  url: https://p.example.com\n  token: k\n",
			wantErr: "Level",
		},
		{
			name:    "BadScheme",
			content: "remote:\n  url: ftp://p.example.com\n  token: k\n",
			wantErr: "scheme",
		},
		{
			name:    "PortConflict",
			content: "metrics:\n  enabled: true\n  port: 2022\nremote:\n  url: https://p.example.com\n  token: k\n",
			wantErr: "conflicts",
		},
		{
			name:    "UnknownProfileType",
			content: "telemetry:\n  profiling:\n    profile_types: [cpu, heap]\nremote:\n  url: https://p.example.com\n  token: k\n",
			wantErr: `unknown type "heap"`,
		},
		{
			name:    "BadByteSize",
			content: "tenants:\n  permission_cache_size: lots\nremote:\n  url: https://p.example.com\n  token: k\n",
			wantErr: "invalid byte size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dittosftp config init")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Remote.URL = "https://panel.example.com"
	cfg.Remote.Token = "node-key"
	cfg.Tenants.PermissionCacheSize = 4 << 20

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "permission_cache_size: 4.0 MiB")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Tenants.PermissionCacheSize, loaded.Tenants.PermissionCacheSize)
	assert.Equal(t, cfg.SFTP.Port, loaded.SFTP.Port)
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"1024", 1024},
		{"8MiB", 8 << 20},
		{"1 MB", 1000 * 1000},
		{"2GiB", 2 << 30},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	out, err := yaml.Marshal(struct {
		Size ByteSize `yaml:"size"`
	}{Size: 8 << 20})
	require.NoError(t, err)
	assert.Equal(t, "size: 8.0 MiB\n", string(out))
}

func TestGetDefaultConfigPath_UsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "dittosftp", "config.yaml"), GetDefaultConfigPath())
	assert.Equal(t, filepath.Join(dir, "dittosftp", "servers"), GetDefaultConfig().Tenants.Dir)
}
