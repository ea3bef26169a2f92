//go:build linux

package engine

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints the kernel that f is read front to back from offset.
func adviseSequential(f *os.File, offset int64) error {
	return unix.Fadvise(int(f.Fd()), offset, 0, unix.FADV_SEQUENTIAL)
}
