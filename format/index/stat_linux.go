//go:build linux

package index

import "golang.org/x/sys/unix"

func ctimespec(sys *unix.Stat_t) (sec, nsec int64) {
	return sys.Ctim.Sec, sys.Ctim.Nsec
}
