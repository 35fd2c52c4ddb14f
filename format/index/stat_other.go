//go:build !linux && !darwin

package index

import "os"

// StatFromFileInfo fills only the portable fields on platforms without a
// Unix Stat_t (e.g. Windows); dev/ino/uid/gid stay zero, matching the
// teacher's repository_windows.go fallback.
func StatFromFileInfo(fi os.FileInfo) StatCache {
	mtime := fi.ModTime()
	return StatCache{
		Size:      uint32(fi.Size()),
		MTimeSec:  uint32(mtime.Unix()),
		MTimeNano: uint32(mtime.Nanosecond()),
	}
}
