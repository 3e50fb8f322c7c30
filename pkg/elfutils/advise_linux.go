//go:build linux

package elfutils

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseRandomAccess tells the kernel that reads will jump between headers
// and segments, which disables sequential read-ahead for the file.
func adviseRandomAccess(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM)
}
