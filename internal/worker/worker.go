// Package worker runs the backup of a single host from start to finish.
//
// A run resolves how to authenticate, checks the host's config for drift,
// mirrors each configured path in order and, if anything failed, mails the
// run log. Every failure is recorded in the run log and the returned result;
// none of them escape Run.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	jujuerrors "github.com/juju/errors"

	"github.com/tastythames/host-backup/internal/auth"
	"github.com/tastythames/host-backup/internal/config"
	"github.com/tastythames/host-backup/internal/drift"
	"github.com/tastythames/host-backup/internal/faults"
	"github.com/tastythames/host-backup/internal/inventory"
	"github.com/tastythames/host-backup/internal/notify"
	"github.com/tastythames/host-backup/internal/preflight"
	"github.com/tastythames/host-backup/internal/results"
	"github.com/tastythames/host-backup/internal/runlog"
	"github.com/tastythames/host-backup/internal/scheduler"
	"github.com/tastythames/host-backup/internal/transfer"
)

// TimestampLayout names a run's snapshot directory and log file.
const TimestampLayout = "2006-01-02_15-04-05"

type Config struct {
	Settings   config.Settings
	BackupRoot string
	Clock      clock.Clock

	Resolver *auth.Resolver
	Drift    *drift.Detector
	Transfer *transfer.Unit
	Notifier notify.Notifier
	Space    preflight.SpaceFunc

	Console *slog.Logger
}

func (c Config) Validate() error {
	switch {
	case c.BackupRoot == "":
		return jujuerrors.NotValidf("empty BackupRoot")
	case c.Clock == nil:
		return jujuerrors.NotValidf("nil Clock")
	case c.Resolver == nil:
		return jujuerrors.NotValidf("nil Resolver")
	case c.Drift == nil:
		return jujuerrors.NotValidf("nil Drift")
	case c.Transfer == nil:
		return jujuerrors.NotValidf("nil Transfer")
	case c.Notifier == nil:
		return jujuerrors.NotValidf("nil Notifier")
	case c.Space == nil:
		return jujuerrors.NotValidf("nil Space")
	}
	return jujuerrors.Trace(c.Settings.Validate())
}

type Worker struct {
	cfg Config
	loc *time.Location
}

func New(cfg Config) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, jujuerrors.Trace(err)
	}
	if cfg.Console == nil {
		cfg.Console = slog.Default()
	}
	return &Worker{cfg: cfg, loc: cfg.Settings.Location()}, nil
}

// TargetRoot is the snapshot directory of a run of host started at ts.
func TargetRoot(backupRoot, host, ts string) string {
	return filepath.Join(backupRoot, host, ts)
}

// backupRun is the in-memory record of one run. failed only ever goes from
// false to true.
type backupRun struct {
	host       string
	started    time.Time
	targetRoot string
	method     auth.Method
	failed     bool
}

func (r *backupRun) markFailed() { r.failed = true }

// Run backs up the host described by job.
func (w *Worker) Run(ctx context.Context, job scheduler.Job) results.Result {
	started := w.cfg.Clock.Now().In(w.loc)
	ts := started.Format(TimestampLayout)
	run := &backupRun{
		host:       job.Host,
		started:    started,
		targetRoot: TargetRoot(w.cfg.BackupRoot, job.Host, ts),
	}
	res := results.Result{Host: job.Host, At: started, Auth: auth.None.String()}

	lg, err := runlog.Open(w.cfg.Settings.LogRoot, job.Host, ts, w.cfg.Console)
	if err != nil {
		w.cfg.Console.Error("cannot open run log", "host", job.Host, "err", err)
		res.Failed = true
		res.Duration = w.cfg.Clock.Now().Sub(started)
		return res
	}
	defer lg.Close()
	res.LogPath = lg.Path
	lg.Info("backup started", "target", run.targetRoot, "config", job.ConfigPath)

	w.checkSpace(lg.Logger)

	hc, err := inventory.Load(job.ConfigPath)
	if err != nil {
		lg.Error("cannot read host config", "err", err)
		run.markFailed()
		return w.finish(ctx, run, lg, res)
	}
	res.Paths = len(hc.Paths)

	run.method = w.cfg.Resolver.Resolve(ctx, run.host, lg.Logger)
	res.Auth = run.method.String()
	if run.method == auth.None {
		lg.Error("skipping all transfers", faults.Key, faults.AuthUnavailable)
		run.markFailed()
		return w.finish(ctx, run, lg, res)
	}

	rep, err := w.cfg.Drift.Check(ctx, run.host, job.ConfigPath, run.method, lg.Logger)
	if err != nil {
		lg.Warn("config drift check failed", "err", err)
	}
	res.Drifted = rep.Drifted()

	for _, p := range hc.Paths {
		spec := transfer.Spec{
			Host:       run.host,
			RemotePath: p,
			TargetRoot: run.targetRoot,
			Method:     run.method,
		}
		if w.cfg.Transfer.Transfer(ctx, spec, lg.Logger, lg.Writer()) == transfer.FailedTwice {
			res.FailedPaths++
			run.markFailed()
		}
	}
	return w.finish(ctx, run, lg, res)
}

func (w *Worker) checkSpace(log *slog.Logger) {
	avail, err := preflight.CheckFreeSpace(w.cfg.Space, w.cfg.BackupRoot, w.cfg.Settings.LowSpaceKB)
	switch {
	case errors.Is(err, faults.LowDiskSpace):
		log.Warn("low disk space on backup root", "available_kb", avail, "threshold_kb", w.cfg.Settings.LowSpaceKB, faults.Key, faults.LowDiskSpace)
	case err != nil:
		log.Warn("cannot check free space", "err", err)
	default:
		log.Info("free space on backup root", "available_kb", avail)
	}
}

func (w *Worker) finish(ctx context.Context, run *backupRun, lg *runlog.Log, res results.Result) results.Result {
	res.Failed = run.failed
	res.Duration = w.cfg.Clock.Now().Sub(run.started)
	lg.Info("backup finished",
		"failed", run.failed,
		"auth", run.method,
		"paths", res.Paths,
		"failed_paths", res.FailedPaths,
		"duration", res.Duration,
	)

	if !run.failed || w.cfg.Settings.AlertRecipient == "" {
		return res
	}
	if err := w.cfg.Notifier.NotifyFailure(ctx, run.host, lg.Path); err != nil {
		lg.Warn("failure alert not sent", "err", err)
		return res
	}
	res.AlertSent = true
	lg.Info("failure alert sent", "to", w.cfg.Settings.AlertRecipient)
	return res
}
