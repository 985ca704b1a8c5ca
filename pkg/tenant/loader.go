package tenant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/dittosftp/internal/logger"
)

// DefaultReloadDebounce is how long Watch waits after the last file event
// before reloading.
const DefaultReloadDebounce = 500 * time.Millisecond

// Factory builds a Server from a definition.
type Factory func(Definition) *Server

// Loader populates a Registry from a directory of YAML files, one per tenant.
type Loader struct {
	dir      string
	registry *Registry
	build    Factory
	debounce time.Duration
}

// NewLoader creates a loader for dir. Tenants are built with NewServer and
// share perms.
func NewLoader(dir string, registry *Registry, perms PermissionChecker) *Loader {
	return NewLoaderWithFactory(dir, registry, func(def Definition) *Server {
		return NewServer(def, perms)
	})
}

// NewLoaderWithFactory creates a loader that builds tenants with build.
func NewLoaderWithFactory(dir string, registry *Registry, build Factory) *Loader {
	return &Loader{
		dir:      dir,
		registry: registry,
		build:    build,
		debounce: DefaultReloadDebounce,
	}
}

// Dir returns the watched directory.
func (l *Loader) Dir() string { return l.dir }

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads every definition in the directory and swaps the registry
// contents. Invalid files are logged and skipped so one bad file does not
// take every tenant offline. The directory is created if missing.
func (l *Loader) Load() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create tenants directory: %w", err)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read tenants directory: %w", err)
	}

	servers := make([]*Server, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		def, err := ReadDefinition(path)
		if err != nil {
			logger.Warn("Skipping tenant definition", "file", path, logger.Err(err))
			continue
		}
		if prev, dup := seen[def.ID]; dup {
			logger.Warn("Skipping duplicate tenant definition",
				"file", path, "first", prev, logger.Server(def.ID))
			continue
		}
		seen[def.ID] = path

		servers = append(servers, l.build(def))
	}

	l.registry.Replace(servers)
	logger.Info("Tenants loaded", "dir", l.dir, "count", len(servers))
	return nil
}

// Watch reloads the registry whenever a definition file changes, until ctx
// is cancelled. Bursts of events are collapsed into one reload.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("failed to watch tenants directory: %w", err)
	}

	logger.Debug("Watching tenant definitions", "dir", l.dir)

	timer := time.NewTimer(l.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDefinitionFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(l.debounce)

		case <-timer.C:
			if err := l.Load(); err != nil {
				logger.Error("Tenant reload failed", logger.Err(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Tenant watcher error", logger.Err(err))
		}
	}
}
