//go:build !linux
// +build !linux

package filelog

import "os"

// adviseSequential is a no-op outside Linux; Fadvise has no portable
// equivalent, matching the teacher's flush_window.go, which skips the hint.
func adviseSequential(f *os.File) {}
