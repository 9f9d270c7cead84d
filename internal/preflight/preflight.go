// Package preflight holds checks that run before a host is backed up. They
// only observe the system; nothing here blocks a run.
package preflight

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/tastythames/host-backup/internal/faults"
)

// SpaceFunc reports the space available to unprivileged users at path, in
// kilobytes.
type SpaceFunc func(path string) (uint64, error)

// CheckFreeSpace returns an error satisfying errors.Is(err, faults.LowDiskSpace)
// when less than minKB is available at path.
func CheckFreeSpace(space SpaceFunc, path string, minKB uint64) (uint64, error) {
	avail, err := space(path)
	if err != nil {
		return 0, errors.Annotatef(err, "query free space of %s", path)
	}
	if avail < minKB {
		return avail, fmt.Errorf("%w: %d KB available at %s, want %d KB", faults.LowDiskSpace, avail, path, minKB)
	}
	return avail, nil
}
