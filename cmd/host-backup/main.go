package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/tastythames/host-backup/internal/auth"
	"github.com/tastythames/host-backup/internal/config"
	"github.com/tastythames/host-backup/internal/drift"
	"github.com/tastythames/host-backup/internal/faults"
	"github.com/tastythames/host-backup/internal/inventory"
	"github.com/tastythames/host-backup/internal/metrics"
	"github.com/tastythames/host-backup/internal/notify"
	"github.com/tastythames/host-backup/internal/preflight"
	"github.com/tastythames/host-backup/internal/results"
	"github.com/tastythames/host-backup/internal/scheduler"
	"github.com/tastythames/host-backup/internal/sshclient"
	"github.com/tastythames/host-backup/internal/transfer"
	"github.com/tastythames/host-backup/internal/worker"
)

type flags struct {
	configFile  string
	maxParallel int
	logRoot     string
	alertTo     string
	notifyDrift bool
	metricsFile string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "host-backup [flags] <config_dir> <backup_root>",
		Short: "Mirror the configured paths of every host into timestamped snapshots",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: need <config_dir> and <backup_root>", faults.MissingArgs)
			}
			return cobra.MaximumNArgs(2)(cmd, args)
		},
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			settings, err := loadSettings(cmd, f)
			if err != nil {
				return err
			}
			console := slog.New(slog.NewTextHandler(stderr, nil))
			return run(context.Background(), settings, args[0], args[1], console)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "YAML settings file")
	fl.IntVarP(&f.maxParallel, "max-parallel", "j", config.DefaultMaxParallel, "hosts backed up at the same time")
	fl.StringVar(&f.logRoot, "log-root", config.DefaultLogRoot, "directory for run logs")
	fl.StringVar(&f.alertTo, "alert-to", "", "mail the run log of failed hosts to this address")
	fl.BoolVar(&f.notifyDrift, "notify-drift", false, "broadcast config drift to terminal sessions")
	fl.StringVar(&f.metricsFile, "metrics-textfile", "", "write a Prometheus textfile summary here")
	return cmd
}

// loadSettings reads the settings file; flags given on the command line win.
func loadSettings(cmd *cobra.Command, f flags) (config.Settings, error) {
	s, err := config.Load(f.configFile)
	if err != nil {
		return config.Settings{}, errors.Trace(err)
	}
	fl := cmd.Flags()
	if fl.Changed("max-parallel") {
		s.MaxParallel = f.maxParallel
	}
	if fl.Changed("log-root") {
		s.LogRoot = f.logRoot
	}
	if fl.Changed("alert-to") {
		s.AlertRecipient = f.alertTo
	}
	if fl.Changed("notify-drift") {
		s.NotifyDrift = f.notifyDrift
	}
	if fl.Changed("metrics-textfile") {
		s.MetricsTextfile = f.metricsFile
	}
	return s, errors.Trace(s.Validate())
}

// run backs up every host in configDir. Host failures end up in the run logs,
// not in the returned error.
func run(ctx context.Context, settings config.Settings, configDir, backupRoot string, console *slog.Logger) error {
	console.Info("config",
		"store", configDir,
		"backup_root", backupRoot,
		"log_root", settings.LogRoot,
		"max_parallel", settings.MaxParallel,
		"password_fallback", settings.SSH.Password() != "",
	)

	sshCli, err := sshclient.New(sshclient.ConfigFrom(settings.SSH))
	if err != nil {
		return errors.Trace(err)
	}
	notifier := notify.NewSystem(settings, sshCli, nil)

	detector, err := drift.New(drift.Config{
		BackupRoot:    backupRoot,
		LogRoot:       settings.LogRoot,
		NotifyEnabled: settings.NotifyDrift,
		Notifier:      notifier,
		Clock:         clock.WallClock,
		Location:      settings.Location(),
	})
	if err != nil {
		return errors.Trace(err)
	}

	rsync, err := transfer.NewRsync(settings, nil)
	if err != nil {
		return errors.Trace(err)
	}
	policy := transfer.DefaultPolicy()
	policy.Delay = settings.Transfer.RetryDelay

	w, err := worker.New(worker.Config{
		Settings:   settings,
		BackupRoot: backupRoot,
		Clock:      clock.WallClock,
		Resolver:   auth.NewResolver(sshCli, settings.SSH.Password() != ""),
		Drift:      detector,
		Transfer:   transfer.NewUnit(rsync, clock.WallClock, policy),
		Notifier:   notifier,
		Space:      preflight.AvailableKB,
		Console:    console,
	})
	if err != nil {
		return errors.Trace(err)
	}

	entries, err := inventory.List(configDir)
	if err != nil {
		console.Error("cannot enumerate hosts", "err", err)
		return nil
	}
	jobs := make([]scheduler.Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, scheduler.Job{Host: e.Host, ConfigPath: e.Path})
	}

	store := results.NewMemStore()
	sched := scheduler.NewScheduler(scheduler.Options{
		MaxParallel: settings.MaxParallel,
		Runner:      w,
		Store:       store,
		Logger:      console,
	})
	sched.Run(ctx, jobs)

	summarize(console, sched, settings.MetricsTextfile)
	return nil
}

func summarize(console *slog.Logger, sched *scheduler.Scheduler, metricsFile string) {
	snap := sched.Results()
	failed := 0
	for _, r := range snap {
		if r.Failed {
			failed++
			console.Warn("host backup failed", "host", r.Host, "log", r.LogPath)
		}
	}
	started, completed := sched.Stats()
	console.Info("backup run finished", "hosts", len(snap), "failed", failed, "started", started, "completed", completed)

	if metricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(metricsFile, snap); err != nil {
		console.Warn("cannot write metrics", "err", err)
	}
}

// Execute runs the CLI and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		// cobra falls back to os.Args for nil
		args = []string{}
	}
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}
