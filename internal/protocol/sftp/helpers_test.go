package sftp

import (
	"bytes"
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/marmos91/dittosftp/internal/logger"
	"github.com/marmos91/dittosftp/pkg/filesystem"
	"github.com/marmos91/dittosftp/pkg/metrics"
)

// ----------------------------------------------------------------------------
// Filesystem
// ----------------------------------------------------------------------------

// countingFS wraps the in-memory facade and counts the calls the handlers
// make, with optional hooks to block or fail individual calls.
type countingFS struct {
	*filesystem.Filesystem

	mem afero.Fs

	readDirCalls atomic.Int32
	readCalls    atomic.Int32
	statCalls    atomic.Int32
	chownCalls   atomic.Int32
	openWrites   atomic.Int32
	removeCalls  atomic.Int32
	chmodCalls   atomic.Int32

	statHook func(path string)
	statErr  error

	mu    sync.Mutex
	files []*countingFile
}

func newCountingFS() *countingFS {
	mem := afero.NewMemMapFs()
	return &countingFS{
		Filesystem: filesystem.NewWithFs(mem, 988, 988),
		mem:        mem,
	}
}

func (c *countingFS) Stat(path string) (os.FileInfo, error) {
	c.statCalls.Add(1)
	if c.statHook != nil {
		c.statHook(path)
	}
	if c.statErr != nil {
		return nil, c.statErr
	}
	return c.Filesystem.Stat(path)
}

func (c *countingFS) ReadRange(path string, off int64, length int) ([]byte, bool, error) {
	c.readCalls.Add(1)
	return c.Filesystem.ReadRange(path, off, length)
}

func (c *countingFS) ReadDir(path string) ([]os.FileInfo, error) {
	c.readDirCalls.Add(1)
	return c.Filesystem.ReadDir(path)
}

func (c *countingFS) OpenWrite(path string, mode filesystem.WriteMode) (afero.File, error) {
	c.openWrites.Add(1)
	f, err := c.Filesystem.OpenWrite(path, mode)
	if err != nil {
		return nil, err
	}
	cf := &countingFile{File: f}
	c.mu.Lock()
	c.files = append(c.files, cf)
	c.mu.Unlock()
	return cf, nil
}

func (c *countingFS) Chown(path string) error {
	c.chownCalls.Add(1)
	return c.Filesystem.Chown(path)
}

func (c *countingFS) Chmod(path string, mode os.FileMode) error {
	c.chmodCalls.Add(1)
	return c.Filesystem.Chmod(path, mode)
}

func (c *countingFS) Remove(path string) error {
	c.removeCalls.Add(1)
	return c.Filesystem.Remove(path)
}

func (c *countingFS) writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := afero.WriteFile(c.mem, path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func (c *countingFS) readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(c.mem, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

type countingFile struct {
	afero.File
	closes atomic.Int32
	writes atomic.Int32
}

func (f *countingFile) Close() error {
	f.closes.Add(1)
	return f.File.Close()
}

func (f *countingFile) WriteAt(p []byte, off int64) (int, error) {
	f.writes.Add(1)
	return f.File.WriteAt(p, off)
}

// ----------------------------------------------------------------------------
// Tenant
// ----------------------------------------------------------------------------

type fakeTenant struct {
	id        string
	uid       int
	fs        Filesystem
	overQuota bool

	mu        sync.Mutex
	grants    map[string]bool
	permCalls int
}

func newFakeTenant(fs Filesystem, capabilities ...string) *fakeTenant {
	grants := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		grants[c] = true
	}
	return &fakeTenant{id: "srv-1", uid: 988, fs: fs, grants: grants}
}

func (f *fakeTenant) ID() string      { return f.id }
func (f *fakeTenant) UID() int        { return f.uid }
func (f *fakeTenant) OverQuota() bool { return f.overQuota }
func (f *fakeTenant) FS() Filesystem  { return f.fs }

func (f *fakeTenant) HasPermission(_ context.Context, capability, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permCalls++
	return token == "tok" && f.grants[capability]
}

func (f *fakeTenant) PermissionChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permCalls
}

// ----------------------------------------------------------------------------
// Metrics
// ----------------------------------------------------------------------------

type recordingMetrics struct {
	metrics.SFTPMetrics

	faults   atomic.Int32
	quota    atomic.Int32
	mu       sync.Mutex
	statuses map[string][]string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		SFTPMetrics: metrics.NewNoopSFTPMetrics(),
		statuses:    make(map[string][]string),
	}
}

func (m *recordingMetrics) RecordRequest(method, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[method] = append(m.statuses[method], status)
}

func (m *recordingMetrics) RecordInternalFault(string) { m.faults.Add(1) }
func (m *recordingMetrics) RecordQuotaRejection()      { m.quota.Add(1) }

func (m *recordingMetrics) Statuses(method string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statuses[method]...)
}

// ----------------------------------------------------------------------------
// Session and logs
// ----------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLogs routes JSON logs at DEBUG level to a buffer for the test.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	logger.InitWithWriter(buf, "DEBUG", "json", false)
	t.Cleanup(func() {
		logger.InitWithWriter(os.Stderr, "INFO", "text", false)
	})
	return buf
}

type testSession struct {
	*Session
	fs      *countingFS
	tenant  *fakeTenant
	metrics *recordingMetrics
	present atomic.Bool
}

func newTestSession(t *testing.T, capabilities ...string) *testSession {
	t.Helper()
	fs := newCountingFS()
	ts := &testSession{
		fs:      fs,
		tenant:  newFakeTenant(fs, capabilities...),
		metrics: newRecordingMetrics(),
	}
	ts.present.Store(true)

	ts.Session = NewSession(context.Background(), Config{
		RequestID: "req-1",
		ServerID:  "srv-1",
		Token:     "tok",
		Username:  "alice.srv-1",
		ClientIP:  "192.0.2.10",
		Lookup: func(id string) (Tenant, bool) {
			if id != "srv-1" || !ts.present.Load() {
				return nil, false
			}
			return ts.tenant, true
		},
		Metrics: ts.metrics,
	})
	t.Cleanup(ts.Session.Close)
	return ts
}
