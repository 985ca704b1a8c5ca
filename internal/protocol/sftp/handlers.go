package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	gosftp "github.com/pkg/sftp"

	"github.com/marmos91/dittosftp/internal/logger"
	"github.com/marmos91/dittosftp/internal/telemetry"
	"github.com/marmos91/dittosftp/pkg/filesystem"
	"github.com/marmos91/dittosftp/pkg/tenant"
)

// Operation names used for spans, metrics and the log procedure field.
const (
	opOpen     = "Open"
	opRead     = "Read"
	opWrite    = "Write"
	opClose    = "Close"
	opOpenDir  = "OpenDir"
	opReadDir  = "ReadDir"
	opStat     = "Stat"
	opLstat    = "Lstat"
	opSetstat  = "Setstat"
	opMkdir    = "Mkdir"
	opRename   = "Rename"
	opRemove   = "Remove"
	opRmdir    = "Rmdir"
	opSymlink  = "Symlink"
	opLink     = "Link"
	opReadlink = "Readlink"
)

var (
	_ gosftp.FileReader           = (*Session)(nil)
	_ gosftp.OpenFileWriter       = (*Session)(nil)
	_ gosftp.PosixRenameFileCmder = (*Session)(nil)
	_ gosftp.LstatFileLister      = (*Session)(nil)
	_ gosftp.RealPathFileLister   = (*Session)(nil)
	_ gosftp.ReadlinkFileLister   = (*Session)(nil)
)

// ============================================================================
// Open
// ============================================================================

// Fileread handles OPEN with read-only flags.
func (s *Session) Fileread(r *gosftp.Request) (io.ReaderAt, error) {
	h, err := s.openFile(r.Context(), r.Filepath, r.Flags)
	if err != nil {
		return nil, err
	}
	return &fileReader{s: s, h: h, ctx: r.Context()}, nil
}

// Filewrite handles OPEN with any of WRITE, APPEND, CREAT or TRUNC set.
func (s *Session) Filewrite(r *gosftp.Request) (io.WriterAt, error) {
	h, err := s.openFile(r.Context(), r.Filepath, r.Flags)
	if err != nil {
		return nil, err
	}
	return &fileWriter{s: s, h: h, ctx: r.Context()}, nil
}

// OpenFile handles OPEN with READ combined with write flags. None of those
// combinations is a supported intent, so this always fails after logging the
// flags.
func (s *Session) OpenFile(r *gosftp.Request) (gosftp.WriterAtReaderAt, error) {
	h, err := s.openFile(r.Context(), r.Filepath, r.Flags)
	if err != nil {
		return nil, err
	}
	s.handles.Release(r.Context(), h.ID, nil)
	return nil, mapError(ErrUnsupported)
}

// openUndispatched serves OPEN for flag values with none of the READ, WRITE,
// APPEND, CREAT or TRUNC bits, which pkg/sftp refuses before calling any
// handler. They run through openFile like any other undecodable value.
func (s *Session) openUndispatched(path string, raw uint32) StatusCode {
	h, err := s.openFile(s.base, path, raw)
	if h != nil {
		s.handles.Release(s.base, h.ID, nil)
		return StatusOpUnsupported
	}
	return wireStatus(err)
}

// openFile implements OPEN.
//
// The download capability gates every open regardless of mode; uploads are
// checked again on each WRITE. Flags are normalized for known client quirks
// before being decoded.
//
// Read handles carry no descriptor: READ is served by ranged reads on the
// facade. Write handles open the file here so that truncation and exclusive
// creation happen at open time.
func (s *Session) openFile(reqCtx context.Context, path string, raw uint32) (*Handle, error) {
	p := filesystem.Clean(path)

	var h *Handle
	err := s.run(reqCtx, opOpen, p, func(ctx context.Context, t Tenant) error {
		if err := s.require(ctx, t, tenant.CapabilityDownload); err != nil {
			return err
		}

		intent := NormalizeFlags(raw)
		if !intent.Supported() {
			logger.WarnCtx(ctx, "Unsupported open flags",
				logger.Path(p), logger.Flags(raw), logger.KeyOpenMode, string(intent))
			return fmt.Errorf("%w: open flags %#x decode to %q", ErrUnsupported, raw, intent)
		}

		if intent == IntentRead {
			info, err := t.FS().Stat(p)
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("open %s: not a regular file", p)
			}
			h = s.handles.Allocate(p, HandleRead, nil)
			return nil
		}

		if err := s.writable(); err != nil {
			return err
		}

		mode, kind := filesystem.WriteTruncate, HandleWrite
		switch intent {
		case IntentWriteExclusive:
			mode = filesystem.WriteExclusive
		case IntentAppend:
			mode, kind = filesystem.WriteAppend, HandleAppend
		}

		f, err := t.FS().OpenWrite(p, mode)
		if err != nil {
			return err
		}
		h = s.handles.Allocate(p, kind, f)
		return nil
	}, telemetry.SFTPFlags(raw))
	if err != nil {
		return nil, err
	}

	logger.DebugCtx(s.opContext(reqCtx, opOpen), "Handle opened",
		logger.Handle(h.ID), logger.Path(p), "kind", h.Kind.String())
	return h, nil
}

// closeHandle implements CLOSE. It always succeeds: closing a handle that is
// already gone is not an error.
func (s *Session) closeHandle(reqCtx context.Context, h *Handle) error {
	err := s.run(reqCtx, opClose, h.Path, func(ctx context.Context, t Tenant) error {
		s.handles.Release(ctx, h.ID, t.FS())
		return nil
	}, telemetry.SFTPHandle(h.ID))
	if err != nil {
		// Tenant gone or session ending: still free the descriptor.
		s.handles.Release(s.base, h.ID, nil)
	}
	return nil
}

// ============================================================================
// Read / Write
// ============================================================================

type fileReader struct {
	s   *Session
	h   *Handle
	ctx context.Context
}

// ReadAt implements READ.
//
// Once a read has reached the end of the file, reads at or beyond that offset
// return EOF without touching the filesystem. pkg/sftp may deliver pipelined
// reads out of order, so reads below the recorded end are still served.
func (r *fileReader) ReadAt(p []byte, off int64) (int, error) {
	var n int
	err := r.s.run(r.ctx, opRead, r.h.Path, func(ctx context.Context, t Tenant) error {
		if err := r.s.require(ctx, t, tenant.CapabilityDownload); err != nil {
			return err
		}
		if _, open := r.s.handles.Get(r.h.ID); !open {
			return errHandleClosed
		}
		if r.h.Done && off >= r.h.EOFOffset {
			return io.EOF
		}

		data, complete, err := t.FS().ReadRange(r.h.Path, off, len(p))
		if errors.Is(err, filesystem.ErrIsDirectory) {
			// Replaced by a directory since OPEN.
			return io.EOF
		}
		if err != nil {
			return err
		}
		n = copy(p, data)
		if complete && (!r.h.Done || off+int64(n) < r.h.EOFOffset) {
			r.h.Done = true
			r.h.EOFOffset = off + int64(n)
		}
		if n == 0 {
			return io.EOF
		}
		return nil
	}, telemetry.SFTPHandle(r.h.ID), telemetry.SFTPOffset(off), telemetry.SFTPCount(len(p)))

	if n > 0 {
		r.s.metrics.RecordBytesTransferred("read", uint64(n))
	}
	return n, err
}

// Close implements CLOSE for read handles.
func (r *fileReader) Close() error {
	return r.s.closeHandle(r.ctx, r.h)
}

type fileWriter struct {
	s   *Session
	h   *Handle
	ctx context.Context
}

// WriteAt implements WRITE.
//
// The upload capability is checked on every write. A tenant over its disk
// quota is refused with OP_UNSUPPORTED before any I/O. Both WRITE and APPEND
// handles write at the offset the client sent; appending clients send the
// current end of file.
func (w *fileWriter) WriteAt(p []byte, off int64) (int, error) {
	var n int
	err := w.s.run(w.ctx, opWrite, w.h.Path, func(ctx context.Context, t Tenant) error {
		if err := w.s.writable(); err != nil {
			return err
		}
		if err := w.s.require(ctx, t, tenant.CapabilityUpload); err != nil {
			return err
		}
		if t.OverQuota() {
			w.s.metrics.RecordQuotaRejection()
			return ErrQuotaExceeded
		}
		if _, open := w.s.handles.Get(w.h.ID); !open {
			return errHandleClosed
		}

		var err error
		n, err = w.h.File.WriteAt(p, off)
		return err
	}, telemetry.SFTPHandle(w.h.ID), telemetry.SFTPOffset(off), telemetry.SFTPCount(len(p)))

	if n > 0 {
		w.s.metrics.RecordBytesTransferred("write", uint64(n))
	}
	return n, err
}

// Close implements CLOSE for write and append handles.
func (w *fileWriter) Close() error {
	return w.s.closeHandle(w.ctx, w.h)
}

// ============================================================================
// Directory listing
// ============================================================================

type dirLister struct {
	s   *Session
	h   *Handle
	ctx context.Context
}

// ListAt implements READDIR.
//
// The list capability is checked on every call. The first call takes a single
// snapshot of the directory; every later call, including the pages pkg/sftp
// requests for large directories, is served from that snapshot, and EOF is
// returned once it is exhausted.
func (l *dirLister) ListAt(buf []os.FileInfo, off int64) (int, error) {
	var n int
	err := l.s.run(l.ctx, opReadDir, l.h.Path, func(ctx context.Context, t Tenant) error {
		if err := l.s.require(ctx, t, tenant.CapabilityList); err != nil {
			return err
		}
		if _, open := l.s.handles.Get(l.h.ID); !open {
			return errHandleClosed
		}

		if !l.h.Done {
			entries, err := t.FS().ReadDir(l.h.Path)
			if err != nil {
				return err
			}
			l.h.listing = wrapInfos(entries, t.UID())
			l.h.Done = true
		}

		if off >= int64(len(l.h.listing)) {
			return io.EOF
		}
		n = copy(buf, l.h.listing[off:])
		return nil
	}, telemetry.SFTPHandle(l.h.ID), telemetry.SFTPOffset(off))

	return n, err
}

// Close releases the listing handle.
func (l *dirLister) Close() error {
	return l.s.closeHandle(l.ctx, l.h)
}

// listerAt serves a fixed set of entries, used for STAT replies.
type listerAt []os.FileInfo

func (l listerAt) ListAt(buf []os.FileInfo, off int64) (int, error) {
	if off >= int64(len(l)) {
		return 0, io.EOF
	}
	return copy(buf, l[off:]), nil
}
