package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosftp/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	tenantsDir := filepath.Join(dir, "servers")
	require.NoError(t, os.MkdirAll(tenantsDir, 0755))

	root := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(root, 0755))

	def := fmt.Sprintf("uuid: srv-1\nroot: %s\nuser: %d\nbuild:\n  disk: 100\n", root, os.Getuid())
	require.NoError(t, os.WriteFile(filepath.Join(tenantsDir, "srv-1.yaml"), []byte(def), 0644))

	cfg := config.GetDefaultConfig()
	cfg.SFTP.BindAddress = "127.0.0.1"
	cfg.SFTP.Port = 0
	cfg.SFTP.HostKeyPath = filepath.Join(dir, "host_key")
	cfg.Remote.URL = "http://127.0.0.1:1"
	cfg.Remote.Token = "node-key"
	cfg.Tenants.Dir = tenantsDir
	cfg.Metrics.Enabled = false
	return cfg
}

func TestServerLifecycle(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(cfg, config.InitializeMetrics(cfg))
	require.NoError(t, err)
	assert.Equal(t, 1, srv.TenantCount())
	assert.False(t, srv.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	assert.NotEmpty(t, srv.Adapter().GetListenerAddr())
	assert.True(t, srv.Ready())
	assert.EqualValues(t, 0, srv.ActiveSessions())

	assert.Eventually(t, func() bool {
		s, ok := srv.Registry().Get("srv-1")
		return ok && s.Filesystem() != nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.Ready())
}

func TestServerReloadsTenants(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	srv.Adapter().GetListenerAddr()

	root := t.TempDir()
	def := fmt.Sprintf("uuid: srv-2\nroot: %s\nuser: 0\n", root)

	// The watcher may not be registered yet. Rewrite the file now and then,
	// slower than the reload debounce, until it is picked up.
	var lastWrite time.Time
	assert.Eventually(t, func() bool {
		if srv.TenantCount() == 2 {
			return true
		}
		if time.Since(lastWrite) > time.Second {
			_ = os.WriteFile(filepath.Join(cfg.Tenants.Dir, "srv-2.yaml"), []byte(def), 0644)
			lastWrite = time.Now()
		}
		return false
	}, 10*time.Second, 50*time.Millisecond)
}

func TestNewFailsOnBadHostKey(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.SFTP.HostKeyPath, []byte("garbage"), 0600))

	_, err := New(cfg, nil)
	assert.Error(t, err)
}
