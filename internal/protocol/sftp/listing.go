package sftp

import (
	"context"
	"os"

	gosftp "github.com/pkg/sftp"

	"github.com/marmos91/dittosftp/pkg/filesystem"
	"github.com/marmos91/dittosftp/pkg/tenant"
)

// Filelist handles OPENDIR (List), STAT and FSTAT (Stat) and, for clients
// that reach it, READLINK.
func (s *Session) Filelist(r *gosftp.Request) (gosftp.ListerAt, error) {
	p := filesystem.Clean(r.Filepath)

	switch r.Method {
	case "List":
		return s.openDir(r, p)
	case "Stat":
		return s.stat(r.Context(), opStat, p)
	case "Readlink":
		return nil, s.unsupported(r.Context(), opReadlink, p)
	default:
		return nil, s.unsupported(r.Context(), r.Method, p)
	}
}

// Lstat handles LSTAT. Symlinks are not exposed, so it behaves as STAT.
func (s *Session) Lstat(r *gosftp.Request) (gosftp.ListerAt, error) {
	return s.stat(r.Context(), opLstat, filesystem.Clean(r.Filepath))
}

// RealPath handles REALPATH. The result is always an absolute path inside
// the sandbox; parent references above "/" are clamped rather than rejected.
func (s *Session) RealPath(p string) (string, error) {
	return filesystem.Clean(p), nil
}

// Readlink handles READLINK, which is not supported.
func (s *Session) Readlink(p string) (string, error) {
	return "", s.unsupported(s.base, opReadlink, filesystem.Clean(p))
}

func (s *Session) openDir(r *gosftp.Request, p string) (gosftp.ListerAt, error) {
	var h *Handle
	err := s.run(r.Context(), opOpenDir, p, func(ctx context.Context, t Tenant) error {
		if err := s.require(ctx, t, tenant.CapabilityList); err != nil {
			return err
		}
		h = s.handles.Allocate(p, HandleDirectory, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dirLister{s: s, h: h, ctx: r.Context()}, nil
}

func (s *Session) stat(reqCtx context.Context, op, p string) (gosftp.ListerAt, error) {
	var info os.FileInfo
	err := s.run(reqCtx, op, p, func(ctx context.Context, t Tenant) error {
		fi, err := t.FS().Stat(p)
		if err != nil {
			return err
		}
		info = newFileInfo(fi, t.UID())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listerAt{info}, nil
}
