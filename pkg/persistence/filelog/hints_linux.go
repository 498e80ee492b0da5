//go:build linux
// +build linux

package filelog

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints to the kernel that f will be read and appended
// sequentially, the way the teacher's disk.DiskHandler.openSegment does
// for its own log segments. Best-effort: a failure here never prevents
// the WAL from being used.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
