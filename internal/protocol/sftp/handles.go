package sftp

import (
	"context"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/marmos91/dittosftp/internal/logger"
)

// HandleKind is what an open handle refers to.
type HandleKind int

const (
	HandleRead HandleKind = iota
	HandleWrite
	HandleAppend
	HandleDirectory
)

func (k HandleKind) String() string {
	switch k {
	case HandleRead:
		return "READ"
	case HandleWrite:
		return "WRITE"
	case HandleAppend:
		return "APPEND"
	case HandleDirectory:
		return "DIRECTORY"
	default:
		return "UNKNOWN"
	}
}

// Handle is one open file or directory listing.
//
// Fields other than ID, Path, Kind and File are mutated by the operation
// currently holding Path in the session's PathQueue, never concurrently.
type Handle struct {
	ID   uint64
	Path string
	Kind HandleKind

	// File is the open descriptor for WRITE and APPEND handles. Reads are
	// served by ranged reads and hold no descriptor.
	File afero.File

	// Done marks that the end of the file or listing has been reached.
	Done bool

	// EOFOffset is the read offset at which Done was set. Reads below it
	// are still served so that pipelined downloads, which issue several
	// reads ahead of the one that hits EOF, get all of their data.
	EOFOffset int64

	// listing is the directory snapshot served to ListAt once Done is set.
	listing []os.FileInfo
}

// Chowner reconciles ownership of a written file.
type Chowner interface {
	Chown(path string) error
}

// HandleTable maps handle ids to open handles for one session.
//
// Thread safety: all methods are safe for concurrent use.
type HandleTable struct {
	mu      sync.Mutex
	next    uint64
	handles map[uint64]*Handle
}

// NewHandleTable creates an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{handles: make(map[uint64]*Handle)}
}

// Allocate registers a new handle and returns it. Ids start at 1 and are
// never reused within the table's lifetime.
func (t *HandleTable) Allocate(path string, kind HandleKind, file afero.File) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	h := &Handle{ID: t.next, Path: path, Kind: kind, File: file}
	t.handles[h.ID] = h
	return h
}

// Get returns the handle with the given id.
func (t *HandleTable) Get(id uint64) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[id]
	return h, ok
}

// Len returns the number of open handles.
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// Release removes the handle, closes its descriptor and, for written files,
// hands ownership to the tenant through chown. Releasing an unknown id does
// nothing. Close and chown failures are logged, never returned: the client
// already has its data on disk.
func (t *HandleTable) Release(ctx context.Context, id uint64, chown Chowner) {
	t.mu.Lock()
	h, ok := t.handles[id]
	if ok {
		delete(t.handles, id)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	t.close(ctx, h, chown)
}

// ReleaseAll releases every open handle. Used when the session ends.
func (t *HandleTable) ReleaseAll(ctx context.Context, chown Chowner) int {
	t.mu.Lock()
	open := make([]*Handle, 0, len(t.handles))
	for id, h := range t.handles {
		open = append(open, h)
		delete(t.handles, id)
	}
	t.mu.Unlock()

	for _, h := range open {
		t.close(ctx, h, chown)
	}
	return len(open)
}

func (t *HandleTable) close(ctx context.Context, h *Handle, chown Chowner) {
	h.listing = nil
	if h.File == nil {
		return
	}

	if err := h.File.Close(); err != nil {
		logger.WarnCtx(ctx, "Failed to close file descriptor",
			logger.Handle(h.ID), logger.Path(h.Path), logger.Err(err))
	}
	if (h.Kind != HandleWrite && h.Kind != HandleAppend) || chown == nil {
		return
	}
	if err := chown.Chown(h.Path); err != nil {
		logger.WarnCtx(ctx, "Failed to reconcile file ownership",
			logger.Handle(h.ID), logger.Path(h.Path), logger.Err(err))
	}
}
