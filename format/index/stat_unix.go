//go:build linux || darwin

package index

import (
	"os"

	"golang.org/x/sys/unix"
)

// StatFromFileInfo fills the platform-dependent fields (dev, inode, uid,
// gid, ctime) from a Unix os.FileInfo, the way the teacher's
// platform-specific repository_unix.go/worktree status files do.
func StatFromFileInfo(fi os.FileInfo) StatCache {
	st := StatCache{
		Size: uint32(fi.Size()),
	}

	mtime := fi.ModTime()
	st.MTimeSec = uint32(mtime.Unix())
	st.MTimeNano = uint32(mtime.Nanosecond())

	sys, ok := fi.Sys().(*unix.Stat_t)
	if !ok {
		return st
	}

	st.Dev = uint32(sys.Dev)
	st.Ino = uint32(sys.Ino)
	st.UID = sys.Uid
	st.GID = sys.Gid

	ctimeSec, ctimeNsec := ctimespec(sys)
	st.CTimeSec = uint32(ctimeSec)
	st.CTimeNano = uint32(ctimeNsec)

	return st
}
