package scheduler

import (
	"context"

	"github.com/tastythames/host-backup/internal/results"
)

// Job is one host file of the config store.
type Job struct {
	Host       string
	ConfigPath string
}

// Runner backs up one host. It must not panic and must not return until the
// host's run is finished.
type Runner interface {
	Run(ctx context.Context, job Job) results.Result
}
