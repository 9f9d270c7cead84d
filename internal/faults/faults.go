// Package faults names the failure classes a backup run can record.
//
// Only MissingArgs ever reaches the process exit status. Every other fault is
// contained by the path or host it concerns and shows up in that host's run
// log as a fault=<name> attribute.
package faults

import "github.com/juju/errors"

const (
	// MissingArgs means the config store or backup root was not given.
	MissingArgs = errors.ConstError("ConfigMissingArgs")

	// AuthUnavailable means neither key nor password auth can be used for a
	// host. The host's transfers are skipped.
	AuthUnavailable = errors.ConstError("AuthUnavailable")

	// TransferFailed means a remote path failed on both attempts.
	TransferFailed = errors.ConstError("TransferFailed")

	// DriftNotifyFailed is advisory and never marks a run failed.
	DriftNotifyFailed = errors.ConstError("DriftNotifyFailed")

	// LowDiskSpace is advisory and never blocks a run.
	LowDiskSpace = errors.ConstError("LowDiskSpace")
)

// Key is the log attribute name faults are recorded under.
const Key = "fault"
