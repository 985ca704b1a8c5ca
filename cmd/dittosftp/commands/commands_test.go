package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()

	var buf bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return buf.String()
}

func writeConfig(t *testing.T) (configPath, tenantsDir string) {
	t.Helper()

	dir := t.TempDir()
	tenantsDir = filepath.Join(dir, "servers")
	require.NoError(t, os.MkdirAll(tenantsDir, 0755))

	configPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`remote:
  url: http://127.0.0.1:1
  token: node-key
sftp:
  host_key_path: %s
tenants:
  dir: %s
`, filepath.Join(dir, "host_key"), tenantsDir)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	return configPath, tenantsDir
}

func TestVersionShort(t *testing.T) {
	Version = "1.2.3"
	out := runCommand(t, "version", "--short")
	assert.Equal(t, "1.2.3\n", out)
}

func TestTenantsListJSON(t *testing.T) {
	configPath, tenantsDir := writeConfig(t)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "world.dat"), make([]byte, 2048), 0644))
	def := fmt.Sprintf("uuid: srv-1\nroot: %s\nuser: 988\nbuild:\n  disk: 5\n", root)
	require.NoError(t, os.WriteFile(filepath.Join(tenantsDir, "srv-1.yaml"), []byte(def), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tenantsDir, "broken.yaml"), []byte("uuid: [\n"), 0644))

	out := runCommand(t, "tenants", "list", "--config", configPath, "--usage", "-o", "json")

	var tenants []tenantInfo
	require.NoError(t, json.Unmarshal([]byte(out), &tenants))
	require.Len(t, tenants, 1)
	assert.Equal(t, "srv-1", tenants[0].ID)
	assert.Equal(t, 988, tenants[0].UID)
	assert.Equal(t, int64(5*1024*1024), tenants[0].DiskQuota)
	require.NotNil(t, tenants[0].DiskUsed)
	assert.Equal(t, int64(2048), *tenants[0].DiskUsed)
}

func TestTenantListRows(t *testing.T) {
	used := int64(1536)
	rows := tenantList{
		{ID: "srv-1", Root: "/srv/a", UID: 988, DiskQuota: 1024 * 1024, DiskUsed: &used},
		{ID: "srv-2", Root: "/srv/b", Suspended: true},
	}.Rows()

	assert.Equal(t, []string{"srv-1", "/srv/a", "988", "1.0 MiB", "1.5 KiB", "false"}, rows[0])
	assert.Equal(t, []string{"srv-2", "/srv/b", "0", "unlimited", "-", "true"}, rows[1])
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host_key")

	out := runCommand(t, "keygen", "--path", path)
	assert.Contains(t, out, "SHA256:")

	_, err := os.Stat(path)
	require.NoError(t, err)
}
