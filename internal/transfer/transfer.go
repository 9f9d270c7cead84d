// Package transfer mirrors one remote path into a run's snapshot directory.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/juju/clock"

	"github.com/tastythames/host-backup/internal/auth"
	"github.com/tastythames/host-backup/internal/faults"
)

type Outcome int

const (
	Success Outcome = iota
	RetriedSuccess
	FailedTwice
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case RetriedSuccess:
		return "FailedOnce-RetriedSuccess"
	default:
		return "FailedTwice"
	}
}

// Spec is one (host, remote path) transfer of a run.
type Spec struct {
	Host       string
	RemotePath string
	TargetRoot string
	Method     auth.Method
}

// Destination is where remotePath is mirrored under targetRoot.
func Destination(targetRoot, remotePath string) string {
	return filepath.Join(targetRoot, filepath.FromSlash(path.Clean("/"+remotePath)))
}

// Syncer performs a single mirror-with-delete of spec, writing all tool
// output to out.
type Syncer interface {
	Sync(ctx context.Context, spec Spec, out io.Writer) error
}

type Unit struct {
	syncer Syncer
	clock  clock.Clock
	policy Policy
}

func NewUnit(s Syncer, clk clock.Clock, p Policy) *Unit {
	return &Unit{syncer: s, clock: clk, policy: p}
}

// Transfer mirrors spec.RemotePath, retrying per the unit's policy. It never
// returns an error; a path that keeps failing is reported as FailedTwice.
func (u *Unit) Transfer(ctx context.Context, spec Spec, log *slog.Logger, out io.Writer) Outcome {
	log = log.With("path", spec.RemotePath)

	attempts, err := Retry(u.clock, u.policy, func(attempt int) error {
		log.Info("transfer started", "attempt", attempt, "auth", spec.Method)
		fmt.Fprintf(out, "--- %s:%s attempt %d\n", spec.Host, spec.RemotePath, attempt)

		err := u.syncer.Sync(ctx, spec, out)
		if err != nil {
			log.Warn("transfer attempt failed", "attempt", attempt, "err", err)
		}
		return err
	})

	switch {
	case err != nil:
		log.Error("transfer failed", "attempts", attempts, "outcome", FailedTwice, faults.Key, faults.TransferFailed)
		return FailedTwice
	case attempts > 1:
		log.Info("transfer succeeded", "attempts", attempts, "outcome", RetriedSuccess)
		return RetriedSuccess
	default:
		log.Info("transfer succeeded", "attempts", attempts, "outcome", Success)
		return Success
	}
}
