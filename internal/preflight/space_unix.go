//go:build !windows

package preflight

import (
	"os"

	"golang.org/x/sys/unix"
)

// AvailableKB is the statfs backed SpaceFunc.
func AvailableKB(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, &os.PathError{Op: "statfs", Path: path, Err: err}
	}
	return uint64(st.Bavail) * uint64(st.Bsize) / 1024, nil
}
