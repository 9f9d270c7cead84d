// Package drift reports changes to a host's config file between runs.
//
// The last seen file content is kept at <backup_root>/<host>/.last_config.
// Only one prior snapshot exists and it is overwritten on every check.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/tastythames/host-backup/internal/auth"
	"github.com/tastythames/host-backup/internal/faults"
	"github.com/tastythames/host-backup/internal/notify"
)

const snapshotName = ".last_config"

func SnapshotPath(backupRoot, host string) string {
	return filepath.Join(backupRoot, host, snapshotName)
}

// LogPath is the append-only drift history of host.
func LogPath(logRoot, host string) string {
	return filepath.Join(logRoot, host+"-config_change.log")
}

type Config struct {
	BackupRoot string
	LogRoot    string
	// NotifyEnabled turns on terminal broadcasts of drift.
	NotifyEnabled bool
	Notifier      notify.Notifier
	Clock         clock.Clock
	Location      *time.Location
}

func (c Config) Validate() error {
	if c.BackupRoot == "" {
		return errors.NotValidf("empty BackupRoot")
	}
	if c.LogRoot == "" {
		return errors.NotValidf("empty LogRoot")
	}
	if c.NotifyEnabled && c.Notifier == nil {
		return errors.NotValidf("nil Notifier")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

type Detector struct {
	cfg Config
}

func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Detector{cfg: cfg}, nil
}

type Report struct {
	// FirstRun is set when there was no snapshot to compare against.
	FirstRun bool
	// Diff is the unified diff from the snapshot to the current file.
	Diff string
}

func (r Report) Drifted() bool { return r.Diff != "" }

// Check compares the host file at configPath against the stored snapshot
// and then replaces the snapshot with the file's content.
func (d *Detector) Check(ctx context.Context, host, configPath string, method auth.Method, log *slog.Logger) (Report, error) {
	cur, err := os.ReadFile(configPath)
	if err != nil {
		return Report{}, errors.Annotate(err, "read host config")
	}

	snap := SnapshotPath(d.cfg.BackupRoot, host)
	var rep Report
	prev, err := os.ReadFile(snap)
	switch {
	case os.IsNotExist(err):
		rep.FirstRun = true
		log.Info("no config snapshot yet, recording baseline", "snapshot", snap)
	case err != nil:
		return Report{}, errors.Annotate(err, "read config snapshot")
	default:
		rep.Diff, err = unifiedDiff(prev, cur, host)
		if err != nil {
			return Report{}, errors.Trace(err)
		}
	}

	if rep.Drifted() {
		d.report(ctx, host, rep.Diff, method, log)
	}

	if err := writeFileAtomic(snap, cur); err != nil {
		return rep, errors.Annotate(err, "write config snapshot")
	}
	return rep, nil
}

func unifiedDiff(prev, cur []byte, host string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(prev)),
		B:        difflib.SplitLines(string(cur)),
		FromFile: snapshotName,
		ToFile:   host,
		Context:  1,
	})
}

func (d *Detector) report(ctx context.Context, host, diff string, method auth.Method, log *slog.Logger) {
	now := d.cfg.Clock.Now().In(d.cfg.Location)
	log.Warn("configuration drift detected", "diff", diff)

	entry := fmt.Sprintf("=== %s config change for %s\n%s", now.Format(time.RFC3339), host, diff)
	if err := appendFile(LogPath(d.cfg.LogRoot, host), entry); err != nil {
		log.Warn("cannot append drift log", "err", err)
	}

	if !d.cfg.NotifyEnabled {
		return
	}
	channels := notify.Local
	if method == auth.Key {
		channels |= notify.Remote
	} else {
		log.Info("remote drift notification skipped", "auth", method)
	}
	msg := fmt.Sprintf("Backup configuration for %s changed since the last run:\n%s", host, diff)
	if err := d.cfg.Notifier.NotifyDrift(ctx, host, msg, channels); err != nil {
		log.Warn("drift notification failed", "err", err, faults.Key, faults.DriftNotifyFailed)
	}
}

func appendFile(path, s string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, snapshotName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
