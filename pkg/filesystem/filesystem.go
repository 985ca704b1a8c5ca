// Package filesystem is the per-tenant filesystem facade. Every path it
// accepts is interpreted relative to the tenant root and can never resolve
// above it.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrIsDirectory is returned by ReadRange when the path is a directory.
	ErrIsDirectory = errors.New("is a directory")

	// ErrOutsideSandbox is returned when a path, after resolving symlinks,
	// points outside the tenant root, or when an operation targets the root
	// itself in a way that would destroy it.
	ErrOutsideSandbox = errors.New("path resolves outside of the server root")
)

// WriteMode selects how OpenWrite opens a file.
type WriteMode int

const (
	// WriteTruncate creates the file or truncates an existing one.
	WriteTruncate WriteMode = iota
	// WriteExclusive creates the file and fails if it already exists.
	WriteExclusive
	// WriteAppend creates the file if needed and keeps existing content.
	WriteAppend
)

func (m WriteMode) String() string {
	switch m {
	case WriteTruncate:
		return "truncate"
	case WriteExclusive:
		return "exclusive"
	case WriteAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Filesystem exposes the file operations the gateway needs, scoped to one
// tenant root.
//
// Thread safety: Filesystem holds no mutable state; concurrent use is safe.
// Ordering between operations on the same path is the caller's concern.
type Filesystem struct {
	// root is the host directory backing the tenant. Empty for in-memory
	// filesystems, which skip symlink confinement.
	root string
	fs   afero.Fs
	uid  int
	gid  int
}

// New returns a Filesystem rooted at root on the host OS. Files written
// through it are chowned to uid:gid.
func New(root string, uid, gid int) *Filesystem {
	root = filepath.Clean(root)
	return &Filesystem{
		root: root,
		fs:   afero.NewBasePathFs(afero.NewOsFs(), root),
		uid:  uid,
		gid:  gid,
	}
}

// NewWithFs wraps an arbitrary afero filesystem, typically afero.NewMemMapFs
// in tests. The filesystem is used as-is; its "/" is the tenant root.
func NewWithFs(afs afero.Fs, uid, gid int) *Filesystem {
	return &Filesystem{fs: afs, uid: uid, gid: gid}
}

// Root returns the host directory backing the tenant, or "" when in-memory.
func (f *Filesystem) Root() string {
	return f.root
}

// Clean normalizes a client path into an absolute sandbox path. Parent
// references that would climb above "/" are clamped at "/".
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)
}

// resolve cleans p and, for host-backed filesystems, verifies that symlinks
// along the path do not lead outside the root.
func (f *Filesystem) resolve(p string) (string, error) {
	clean := Clean(p)
	if f.root == "" {
		return clean, nil
	}

	// Walk up to the deepest existing ancestor; anything below it cannot be
	// a symlink yet.
	host := filepath.Join(f.root, filepath.FromSlash(clean))
	existing := host
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	rootResolved, err := filepath.EvalSymlinks(f.root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideSandbox
	}

	return clean, nil
}

// Stat returns file metadata for p.
func (f *Filesystem) Stat(p string) (os.FileInfo, error) {
	clean, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	return f.fs.Stat(clean)
}

// ReadRange reads up to length bytes from p starting at off. complete is
// true when the returned bytes reach the end of the file.
func (f *Filesystem) ReadRange(p string, off int64, length int) (data []byte, complete bool, err error) {
	clean, err := f.resolve(p)
	if err != nil {
		return nil, false, err
	}

	file, err := f.fs.Open(clean)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() {
		return nil, false, ErrIsDirectory
	}
	if off >= info.Size() {
		return nil, true, nil
	}

	buf := make([]byte, length)
	n, err := file.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	return buf[:n], off+int64(n) >= info.Size(), nil
}

// ReadDir lists the entries of directory p sorted by name.
func (f *Filesystem) ReadDir(p string) ([]os.FileInfo, error) {
	clean, err := f.resolve(p)
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(f.fs, clean)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// OpenWrite opens p for writing, creating it if needed.
//
// Append handles are opened without O_APPEND: the caller positions each
// write itself, which keeps WriteAt usable on the returned file.
func (f *Filesystem) OpenWrite(p string, mode WriteMode) (afero.File, error) {
	clean, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	if clean == "/" {
		return nil, fmt.Errorf("open %s: is the root directory", p)
	}

	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case WriteTruncate:
		flags |= os.O_TRUNC
	case WriteExclusive:
		flags |= os.O_EXCL
	case WriteAppend:
	default:
		return nil, fmt.Errorf("unknown write mode %d", mode)
	}

	return f.fs.OpenFile(clean, flags, 0644)
}

// Chmod changes the permission bits of p.
func (f *Filesystem) Chmod(p string, mode os.FileMode) error {
	clean, err := f.resolve(p)
	if err != nil {
		return err
	}
	return f.fs.Chmod(clean, mode.Perm())
}

// Chown hands p to the tenant's uid:gid.
func (f *Filesystem) Chown(p string) error {
	clean, err := f.resolve(p)
	if err != nil {
		return err
	}
	return f.fs.Chown(clean, f.uid, f.gid)
}

// Mkdirp creates p and any missing parents.
func (f *Filesystem) Mkdirp(p string) error {
	clean, err := f.resolve(p)
	if err != nil {
		return err
	}
	return f.fs.MkdirAll(clean, 0755)
}

// Move renames from to to, creating the destination's parent directories.
func (f *Filesystem) Move(from, to string) error {
	src, err := f.resolve(from)
	if err != nil {
		return err
	}
	dst, err := f.resolve(to)
	if err != nil {
		return err
	}
	if src == "/" || dst == "/" {
		return ErrOutsideSandbox
	}

	if _, err := f.fs.Stat(src); err != nil {
		return err
	}
	if err := f.fs.MkdirAll(path.Dir(dst), 0755); err != nil {
		return err
	}
	return f.fs.Rename(src, dst)
}

// Remove deletes p recursively. A missing path is reported as fs.ErrNotExist.
func (f *Filesystem) Remove(p string) error {
	clean, err := f.resolve(p)
	if err != nil {
		return err
	}
	if clean == "/" {
		return ErrOutsideSandbox
	}

	if _, err := f.fs.Stat(clean); err != nil {
		return err
	}
	return f.fs.RemoveAll(clean)
}

// DiskUsage sums the size of every regular file below the root.
func (f *Filesystem) DiskUsage(ctx context.Context) (int64, error) {
	var total int64
	err := afero.Walk(f.fs, "/", func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			// Files may vanish while walking.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
