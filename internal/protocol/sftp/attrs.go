package sftp

import (
	"os"
	"time"
)

var unixEpoch = time.Unix(0, 0)

// fileInfo presents facade metadata to pkg/sftp with ownership synthesized
// from the tenant instead of read from the host.
//
// It implements sftp.FileInfoUidGid. Sys is hidden so pkg/sftp does not pick
// up the host's uid and gid from syscall.Stat_t.
type fileInfo struct {
	os.FileInfo
	id uint32
}

func newFileInfo(fi os.FileInfo, id int) os.FileInfo {
	return fileInfo{FileInfo: fi, id: uint32(id)}
}

func (fi fileInfo) Uid() uint32 { return fi.id }
func (fi fileInfo) Gid() uint32 { return fi.id }
func (fi fileInfo) Sys() any    { return nil }

// ModTime falls back to the Unix epoch when the facade reports no usable time.
func (fi fileInfo) ModTime() time.Time {
	t := fi.FileInfo.ModTime()
	if t.IsZero() || t.Before(unixEpoch) {
		return unixEpoch
	}
	return t
}

func wrapInfos(infos []os.FileInfo, id int) []os.FileInfo {
	out := make([]os.FileInfo, len(infos))
	for i, fi := range infos {
		out[i] = newFileInfo(fi, id)
	}
	return out
}
