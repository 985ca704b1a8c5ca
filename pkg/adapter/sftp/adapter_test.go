package sftp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gosftp "github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/marmos91/dittosftp/pkg/adapter"
	"github.com/marmos91/dittosftp/pkg/metrics"
	"github.com/marmos91/dittosftp/pkg/remote"
	"github.com/marmos91/dittosftp/pkg/tenant"
)

const (
	testUser     = "alice.srv-1"
	testPassword = "secret"
)

// authMetrics records authentication outcomes and session counts.
type authMetrics struct {
	metrics.SFTPMetrics

	mu       sync.Mutex
	results  []string
	sessions []int32
}

func newAuthMetrics() *authMetrics {
	return &authMetrics{SFTPMetrics: metrics.NewNoopSFTPMetrics()}
}

func (m *authMetrics) RecordAuthAttempt(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *authMetrics) SetActiveSessions(count int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, count)
}

func (m *authMetrics) has(result string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r == result {
			return true
		}
	}
	return false
}

// newPanel fakes the control plane. alice.srv-1 maps to srv-1, bob maps to
// a server the gateway does not know, everyone else is refused.
func newPanel(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/remote/sftp/auth", func(w http.ResponseWriter, r *http.Request) {
		var req remote.AuthRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case req.Username == testUser && req.Password == testPassword:
			_ = json.NewEncoder(w).Encode(remote.AuthResponse{Server: "srv-1", Token: "tok"})
		case req.Username == "bob" && req.Password == testPassword:
			_ = json.NewEncoder(w).Encode(remote.AuthResponse{Server: "srv-gone", Token: "tok"})
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":[{"code":"FORBIDDEN","status":"403","detail":"invalid credentials"}]}`))
		}
	})
	mux.HandleFunc("/api/remote/sftp/permissions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(remote.PermissionResponse{Allowed: true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testGateway struct {
	adapter *SFTPAdapter
	addr    string
	root    string
	metrics *authMetrics
}

func startGateway(t *testing.T, readOnly bool) *testGateway {
	t.Helper()

	panel := newPanel(t)
	client := remote.New(panel.URL, "node-key", 5*time.Second)

	root := t.TempDir()
	registry := tenant.NewRegistry()
	registry.Add(tenant.NewServer(tenant.Definition{ID: "srv-1", Root: root, User: os.Getuid()}, client))

	m := newAuthMetrics()
	a, err := New(SFTPConfig{
		BaseConfig: adapter.BaseConfig{
			BindAddress:     "127.0.0.1",
			ShutdownTimeout: 5 * time.Second,
		},
		HostKeyPath:     filepath.Join(t.TempDir(), "host_key"),
		GenerateHostKey: true,
		IdleTimeout:     time.Minute,
		ReadOnly:        readOnly,
	}, NewRemoteAuthenticator(client), registry, m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("adapter did not stop")
		}
	})

	return &testGateway{adapter: a, addr: a.GetListenerAddr(), root: root, metrics: m}
}

func (g *testGateway) dial(t *testing.T, user string, auth ...ssh.AuthMethod) (*ssh.Client, error) {
	t.Helper()
	return ssh.Dial("tcp", g.addr, &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.FixedHostKey(g.adapter.HostKey()),
		Timeout:         5 * time.Second,
	})
}

func (g *testGateway) sftpClient(t *testing.T) *gosftp.Client {
	t.Helper()

	conn, err := g.dial(t, testUser, ssh.Password(testPassword))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := gosftp.NewClient(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGatewayUploadDownloadList(t *testing.T) {
	g := startGateway(t, false)
	client := g.sftpClient(t)

	require.True(t, g.adapter.Ready())

	f, err := client.OpenFile("/plugins/a.jar", os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	assert.Error(t, err, "parent directory does not exist yet")
	if f != nil {
		_ = f.Close()
	}

	require.NoError(t, client.Mkdir("/plugins"))

	f, err = client.OpenFile("/plugins/a.jar", os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello gateway"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	onDisk, err := os.ReadFile(filepath.Join(g.root, "plugins", "a.jar"))
	require.NoError(t, err)
	assert.Equal(t, "hello gateway", string(onDisk))

	r, err := client.Open("/plugins/a.jar")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello gateway", string(data))

	entries, err := client.ReadDir("/plugins")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.jar", entries[0].Name())
	assert.Equal(t, int64(len("hello gateway")), entries[0].Size())

	wd, err := client.RealPath("../../plugins/./")
	require.NoError(t, err)
	assert.Equal(t, "/plugins", wd)

	require.NoError(t, client.PosixRename("/plugins/a.jar", "/plugins/b.jar"))
	require.NoError(t, client.Remove("/plugins/b.jar"))
	_, err = os.Stat(filepath.Join(g.root, "plugins", "b.jar"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = client.Stat("/missing")
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.True(t, g.metrics.has(authSuccess))
	assert.EqualValues(t, 1, g.adapter.ActiveSessions())
}

func TestGatewayRejectsBadPassword(t *testing.T) {
	g := startGateway(t, false)

	_, err := g.dial(t, testUser, ssh.Password("wrong"))
	require.Error(t, err)
	assert.True(t, g.metrics.has(authRejected))
	assert.False(t, g.metrics.has(authSuccess))
}

func TestGatewayRejectsUnknownServer(t *testing.T) {
	g := startGateway(t, false)

	_, err := g.dial(t, "bob", ssh.Password(testPassword))
	require.Error(t, err)
	assert.True(t, g.metrics.has(authRejected))
}

func TestGatewayRejectsPublicKey(t *testing.T) {
	g := startGateway(t, false)

	signer, err := GenerateHostKey(filepath.Join(t.TempDir(), "client_key"), false)
	require.NoError(t, err)

	_, err = g.dial(t, testUser, ssh.PublicKeys(signer))
	require.Error(t, err)
	assert.True(t, g.metrics.has(authUnsupportedMethod))
	assert.False(t, g.metrics.has(authSuccess))
}

func TestGatewayFallsBackToPasswordAfterKey(t *testing.T) {
	g := startGateway(t, false)

	signer, err := GenerateHostKey(filepath.Join(t.TempDir(), "client_key"), false)
	require.NoError(t, err)

	conn, err := g.dial(t, testUser, ssh.PublicKeys(signer), ssh.Password(testPassword))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	assert.True(t, g.metrics.has(authUnsupportedMethod))
	assert.True(t, g.metrics.has(authSuccess))
}

func TestGatewayRefusesOtherSubsystems(t *testing.T) {
	g := startGateway(t, false)

	conn, err := g.dial(t, testUser, ssh.Password(testPassword))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	session, err := conn.NewSession()
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	assert.Error(t, session.RequestSubsystem("shell"))
	assert.Error(t, session.Shell())
}

func TestGatewayReadOnly(t *testing.T) {
	g := startGateway(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(g.root, "server.properties"), []byte("motd=hi"), 0644))

	client := g.sftpClient(t)

	_, err := client.OpenFile("/new.txt", os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	assert.ErrorIs(t, err, os.ErrPermission)

	assert.Error(t, client.Remove("/server.properties"))

	r, err := client.Open("/server.properties")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()
	assert.Equal(t, "motd=hi", string(data))
}

func TestGatewaySessionEndReleasesCount(t *testing.T) {
	g := startGateway(t, false)

	conn, err := g.dial(t, testUser, ssh.Password(testPassword))
	require.NoError(t, err)
	client, err := gosftp.NewClient(conn)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return g.adapter.ActiveSessions() == 1 }, time.Second, 10*time.Millisecond)

	_ = client.Close()
	_ = conn.Close()

	assert.Eventually(t, func() bool { return g.adapter.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return g.adapter.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
