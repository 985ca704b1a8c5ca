package sftp

import (
	"context"
	"os"

	gosftp "github.com/pkg/sftp"

	"github.com/marmos91/dittosftp/internal/telemetry"
	"github.com/marmos91/dittosftp/pkg/filesystem"
	"github.com/marmos91/dittosftp/pkg/tenant"
)

// Filecmd handles SETSTAT, RENAME, MKDIR, RMDIR, REMOVE, SYMLINK and LINK.
func (s *Session) Filecmd(r *gosftp.Request) error {
	p := filesystem.Clean(r.Filepath)

	switch r.Method {
	case "Setstat":
		return s.setstat(r, p)
	case "Rename":
		return s.rename(r, p)
	case "Mkdir":
		return s.mutate(r, opMkdir, p, tenant.CapabilityCreate, func(fs Filesystem) error {
			return fs.Mkdirp(p)
		})
	case "Rmdir":
		return s.mutate(r, opRmdir, p, tenant.CapabilityDelete, func(fs Filesystem) error {
			return fs.Remove(p)
		})
	case "Remove":
		return s.mutate(r, opRemove, p, tenant.CapabilityDelete, func(fs Filesystem) error {
			return fs.Remove(p)
		})
	case "Symlink":
		return s.unsupported(r.Context(), opSymlink, p)
	case "Link":
		return s.unsupported(r.Context(), opLink, p)
	default:
		return s.unsupported(r.Context(), r.Method, p)
	}
}

// PosixRename handles the posix-rename@openssh.com extension the same way
// as RENAME: the facade move already replaces an existing target.
func (s *Session) PosixRename(r *gosftp.Request) error {
	return s.rename(r, filesystem.Clean(r.Filepath))
}

// setstat applies a mode change. Requests that carry no permission bits,
// such as the timestamp updates clients send after uploads, succeed without
// touching the filesystem.
func (s *Session) setstat(r *gosftp.Request, p string) error {
	return s.run(r.Context(), opSetstat, p, func(ctx context.Context, t Tenant) error {
		if !r.AttrFlags().Permissions {
			return nil
		}
		if err := s.writable(); err != nil {
			return err
		}
		return t.FS().Chmod(p, os.FileMode(r.Attributes().Mode).Perm())
	})
}

// rename is queued under the source path.
func (s *Session) rename(r *gosftp.Request, from string) error {
	to := filesystem.Clean(r.Target)
	return s.run(r.Context(), opRename, from, func(ctx context.Context, t Tenant) error {
		if err := s.writable(); err != nil {
			return err
		}
		if err := s.require(ctx, t, tenant.CapabilityMove); err != nil {
			return err
		}
		return t.FS().Move(from, to)
	}, telemetry.SFTPTarget(to))
}

// mutate runs a capability-gated filesystem change.
func (s *Session) mutate(r *gosftp.Request, op, p, capability string, fn func(Filesystem) error) error {
	return s.run(r.Context(), op, p, func(ctx context.Context, t Tenant) error {
		if err := s.writable(); err != nil {
			return err
		}
		if err := s.require(ctx, t, capability); err != nil {
			return err
		}
		return fn(t.FS())
	})
}

// unsupported answers OP_UNSUPPORTED without a capability check or any
// filesystem access.
func (s *Session) unsupported(reqCtx context.Context, op, p string) error {
	return s.run(reqCtx, op, p, func(context.Context, Tenant) error {
		return ErrUnsupported
	})
}
