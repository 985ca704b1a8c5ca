package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function restoring the original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		currentFormat.Store("text")
		SetLevel("INFO")
		reconfigure()
	}

	return buf, cleanup
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		for _, want := range []string{"DEBUG", "INFO", "WARN", "ERROR", "debug message", "error message"} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("WarnLevelFiltersDebugAndInfo", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("ErrorAlwaysLogged", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		Warn("warn message")
		Error("error message")

		assert.NotContains(t, buf.String(), "warn message")
		assert.Contains(t, buf.String(), "error message")
	})
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		_, cleanup := captureOutput()
		defer cleanup()

		SetLevel("debug")
		assert.Equal(t, LevelDebug, Level(currentLevel.Load()))
		assert.True(t, IsDebug())
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		_, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")
		SetLevel("LOUD")
		assert.Equal(t, LevelWarn, Level(currentLevel.Load()))
		assert.False(t, IsDebug())
	})
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

// ============================================================================
// Text Formatting Tests
// ============================================================================

func TestTextFormatting(t *testing.T) {
	t.Run("IncludesLevelAndFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("file opened", KeyPath, "/plugins/a.jar", KeyOffset, int64(4096))

		out := buf.String()
		assert.Contains(t, out, "[INFO] file opened")
		assert.Contains(t, out, "path=/plugins/a.jar")
		assert.Contains(t, out, "offset=4096")
	})

	t.Run("QuotesValuesWithSpaces", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("rename", KeyNewPath, "/my world/level.dat", KeyOldPath, "")

		out := buf.String()
		assert.Contains(t, out, `new_path="/my world/level.dat"`)
		assert.Contains(t, out, `old_path=""`)
	})

	t.Run("GroupsPrefixKeys", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		With().WithGroup("sftp").Info("grouped", "method", "Get")

		assert.Contains(t, buf.String(), "sftp.method=Get")
	})

	t.Run("WithBindsAttributes", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		With(KeyServer, "d3aac109").Info("bound")

		assert.Contains(t, buf.String(), "[INFO] [d3aac109] bound")
		assert.NotContains(t, buf.String(), "server=")
	})

	t.Run("SessionTagShortensRequestID", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		Info("stat", KeyServer, "d3aac109", KeyRequestID, "0b7e7c7c-5a3e-4b8f", KeyPath, "/a.jar")

		out := buf.String()
		assert.Contains(t, out, "[d3aac109/0b7e7c7c] stat path=/a.jar")
		assert.NotContains(t, out, KeyRequestID+"=")
	})
}

func TestCredentialsRedacted(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			buf, cleanup := captureOutput()
			defer cleanup()

			SetFormat(format)
			Warn("auth rejected", KeyUsername, "alice.d3aac109", "password", "hunter2", "Token", "abc123")

			out := buf.String()
			assert.NotContains(t, out, "hunter2")
			assert.NotContains(t, out, "abc123")
			assert.Contains(t, out, RedactedValue)
			assert.Contains(t, out, "alice.d3aac109")
		})
	}
}

func TestInitFileOutput(t *testing.T) {
	_, cleanup := captureOutput()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "logs", "gateway.log")
	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
	Info("written to file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	Info("test message", "key1", "value1", "key2", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value1", entry["key1"])
	assert.Equal(t, float64(42), entry["key2"])
	assert.Contains(t, entry, "time")
}

func TestInvalidFormatIgnored(t *testing.T) {
	_, cleanup := captureOutput()
	defer cleanup()

	SetFormat("xml")
	assert.Equal(t, "text", currentFormat.Load())
}

// ============================================================================
// Context Logging Tests
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("LogContextInjectsSessionFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetFormat("json")

		lc := NewLogContext("10.0.0.7").
			WithSession("alice.d3aac109", "d3aac109", "0b7e7c7c-5a3e-4b8f-9a43-8e9b5a2b0c11").
			WithProcedure("Stat")
		ctx := WithContext(context.Background(), lc)

		WarnCtx(ctx, "stat failed", KeyPath, "/server.properties")

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))

		assert.Equal(t, "10.0.0.7", entry[KeyClientIP])
		assert.Equal(t, "alice.d3aac109", entry[KeyUsername])
		assert.Equal(t, "d3aac109", entry[KeyServer])
		assert.Equal(t, "0b7e7c7c-5a3e-4b8f-9a43-8e9b5a2b0c11", entry[KeyRequestID])
		assert.Equal(t, "Stat", entry[KeyProcedure])
		assert.Equal(t, "/server.properties", entry[KeyPath])
	})

	t.Run("NilContextHandled", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		//nolint:staticcheck // exercising nil context handling
		InfoCtx(nil, "no context")
		assert.Contains(t, buf.String(), "no context")
	})

	t.Run("ContextWithoutLogContext", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		ErrorCtx(context.Background(), "plain", "k", "v")
		assert.Contains(t, buf.String(), "k=v")
		assert.NotContains(t, buf.String(), KeyRequestID)
	})
}

func TestLogContext(t *testing.T) {
	t.Run("CloneIsIndependent", func(t *testing.T) {
		lc := &LogContext{ClientIP: "10.0.0.1", Username: "bob"}
		clone := lc.Clone()
		clone.Username = "eve"

		assert.Equal(t, "bob", lc.Username)
		assert.Equal(t, "10.0.0.1", clone.ClientIP)
	})

	t.Run("CloneNil", func(t *testing.T) {
		var lc *LogContext
		assert.Nil(t, lc.Clone())
		assert.Nil(t, lc.WithProcedure("Get"))
		assert.Zero(t, lc.DurationMs())
	})

	t.Run("WithTrace", func(t *testing.T) {
		lc := NewLogContext("10.0.0.1").WithTrace("trace", "span")
		assert.Equal(t, "trace", lc.TraceID)
		assert.Equal(t, "span", lc.SpanID)
	})
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, "0x2a", Flags(42).Value.String())
	assert.Equal(t, slog.Attr{}, Err(nil))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.Equal(t, uint64(7), Handle(7).Value.Uint64())
}

func TestConcurrentLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	const goroutines = 10
	const perGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				Info("goroutine log", "id", id, "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, goroutines*perGoroutine)
}

func TestInit(t *testing.T) {
	t.Run("InitWithWriter", func(t *testing.T) {
		_, cleanup := captureOutput()
		defer cleanup()

		buf := new(bytes.Buffer)
		InitWithWriter(buf, "DEBUG", "text", false)

		Debug("test message")
		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("InitWithFile", func(t *testing.T) {
		_, cleanup := captureOutput()
		defer cleanup()

		path := t.TempDir() + "/sftp.log"
		require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
		Info("to file")

		mu.Lock()
		if c, ok := output.(io.Closer); ok {
			_ = c.Close()
		}
		mu.Unlock()
	})

	t.Run("InitWithEmptyConfig", func(t *testing.T) {
		require.NoError(t, Init(Config{}))
	})
}
