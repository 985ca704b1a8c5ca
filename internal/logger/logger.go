package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

// RedactedValue replaces the value of any credential-bearing attribute.
const RedactedValue = "[REDACTED]"

// redactedKeys never reach the log output, whatever the caller passes.
var redactedKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"authorization": {},
	"node_key":      {},
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // "text" or "json"

	// levelVar is shared by every handler so SetLevel takes effect without
	// rebuilding them.
	levelVar = new(slog.LevelVar)

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	logFile  *os.File
	useColor bool = true
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")
	useColor = isTerminal(os.Stdout.Fd())
	reconfigure()
}

// redact masks credential attributes. It is installed as ReplaceAttr on both
// handlers.
func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}

// reconfigure rebuilds the handler for the current output and format.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	levelVar.Set(Level(currentLevel.Load()).slogLevel())
	opts := &slog.HandlerOptions{Level: levelVar, ReplaceAttr: redact}

	var h slog.Handler
	if format, _ := currentFormat.Load().(string); format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// openOutput resolves a Config.Output value. A path gets its parent
// directory created and is opened for append.
func openOutput(dest string) (io.Writer, *os.File, bool, error) {
	switch strings.ToLower(dest) {
	case "", "stdout":
		return os.Stdout, nil, isTerminal(os.Stdout.Fd()), nil
	case "stderr":
		return os.Stderr, nil, isTerminal(os.Stderr.Fd()), nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, nil, false, fmt.Errorf("failed to create log directory for %q: %w", dest, err)
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to open log file %q: %w", dest, err)
	}
	return f, f, false, nil
}

// Init configures level, format and output. A previously opened log file is
// closed once the new output is in place.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, f, color, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}

		mu.Lock()
		prev := logFile
		output, logFile, useColor = w, f, color
		mu.Unlock()

		if prev != nil && prev != f {
			_ = prev.Close()
		}
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}

	reconfigure()
	return nil
}

// InitWithWriter points the logger at w. Used by tests.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
	reconfigure()
}

// Close releases the log file opened by Init, if any, and falls back to
// stdout.
func Close() error {
	mu.Lock()
	f := logFile
	logFile = nil
	output = os.Stdout
	mu.Unlock()

	reconfigure()
	if f == nil {
		return nil
	}
	return f.Close()
}

// SetLevel sets the minimum log level. Unknown names are ignored.
func SetLevel(level string) {
	var l Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = LevelDebug
	case "INFO":
		l = LevelInfo
	case "WARN", "WARNING":
		l = LevelWarn
	case "ERROR":
		l = LevelError
	default:
		return
	}
	currentLevel.Store(int32(l))
	levelVar.Set(l.slogLevel())
}

// SetFormat switches between "text" and "json". Unknown formats are ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

// IsDebug reports whether debug logging is active. Callers use it to skip
// building expensive debug arguments on hot paths.
func IsDebug() bool {
	return enabled(LevelDebug)
}

func enabled(l Level) bool {
	return l >= Level(currentLevel.Load())
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// ============================================================================
// Structured Logging API
// ============================================================================

// Debug logs at debug level.
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) {
	if enabled(LevelDebug) {
		getLogger().Debug(msg, args...)
	}
}

// Info logs at info level.
func Info(msg string, args ...any) {
	if enabled(LevelInfo) {
		getLogger().Info(msg, args...)
	}
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	if enabled(LevelWarn) {
		getLogger().Warn(msg, args...)
	}
}

// Error always logs.
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// ============================================================================
// Context-aware Logging API
// ============================================================================

// DebugCtx logs at debug level with the session fields carried by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, LevelDebug, msg, args)
}

// InfoCtx logs at info level with the session fields carried by ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, LevelInfo, msg, args)
}

// WarnCtx logs at warn level with the session fields carried by ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, LevelWarn, msg, args)
}

// ErrorCtx always logs, with the session fields carried by ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, LevelError, msg, args)
}

func logCtx(ctx context.Context, l Level, msg string, args []any) {
	if l != LevelError && !enabled(l) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	getLogger().Log(ctx, l.slogLevel(), msg, appendContextFields(ctx, args)...)
}

// appendContextFields prepends LogContext fields to args so they appear
// first in output.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 14+len(args))
	for _, f := range []struct{ key, val string }{
		{KeyTraceID, lc.TraceID},
		{KeySpanID, lc.SpanID},
		{KeyProcedure, lc.Procedure},
		{KeyClientIP, lc.ClientIP},
		{KeyUsername, lc.Username},
		{KeyServer, lc.ServerID},
		{KeyRequestID, lc.RequestID},
	} {
		if f.val != "" {
			ctxArgs = append(ctxArgs, f.key, f.val)
		}
	}
	return append(ctxArgs, args...)
}

// With returns a logger with pre-bound attributes.
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// Duration returns the milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
