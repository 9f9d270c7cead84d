// Package notify delivers failure alerts and drift broadcasts. Delivery
// errors are returned to the caller, which logs them; they never fail a run.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/juju/errors"

	"github.com/tastythames/host-backup/internal/config"
)

// Channel selects where a drift broadcast goes.
type Channel uint8

const (
	// Local broadcasts to sessions on the backup server.
	Local Channel = 1 << iota
	// Remote broadcasts to sessions on the backed up host.
	Remote
)

func (c Channel) Has(o Channel) bool { return c&o != 0 }

type Notifier interface {
	// NotifyFailure mails the run log at logPath.
	NotifyFailure(ctx context.Context, host, logPath string) error
	// NotifyDrift broadcasts message on channels.
	NotifyDrift(ctx context.Context, host, message string, channels Channel) error
}

// Broadcaster reaches terminal sessions on a remote host.
type Broadcaster interface {
	Broadcast(ctx context.Context, host, message string) error
}

// RunFunc runs a local program with stdin.
type RunFunc func(ctx context.Context, argv []string, stdin io.Reader) error

// System delivers through the local mail and wall programs and a remote
// Broadcaster.
type System struct {
	recipient string
	mail      []string
	wall      []string
	remote    Broadcaster
	run       RunFunc
}

// NewSystem returns a System. run may be nil to use os/exec.
func NewSystem(s config.Settings, remote Broadcaster, run RunFunc) *System {
	if run == nil {
		run = execRun
	}
	return &System{
		recipient: s.AlertRecipient,
		mail:      s.Notify.Mail,
		wall:      s.Notify.Wall,
		remote:    remote,
		run:       run,
	}
}

func FailureSubject(host string) string {
	return fmt.Sprintf("Backup FAILED: %s", host)
}

func (s *System) NotifyFailure(ctx context.Context, host, logPath string) error {
	if s.recipient == "" {
		return errors.NotValidf("empty alert recipient")
	}
	body, err := os.ReadFile(logPath)
	if err != nil {
		return errors.Annotate(err, "read run log")
	}
	argv := append(append([]string(nil), s.mail...), "-s", FailureSubject(host), s.recipient)
	if err := s.run(ctx, argv, bytes.NewReader(body)); err != nil {
		return errors.Annotatef(err, "mail %s", s.recipient)
	}
	return nil
}

func (s *System) NotifyDrift(ctx context.Context, host, message string, channels Channel) error {
	var errs []error
	if channels.Has(Remote) {
		if s.remote == nil {
			errs = append(errs, errors.NotSupportedf("remote broadcast"))
		} else if err := s.remote.Broadcast(ctx, host, message); err != nil {
			errs = append(errs, errors.Annotate(err, "remote broadcast"))
		}
	}
	if channels.Has(Local) {
		if err := s.run(ctx, s.wall, strings.NewReader(message)); err != nil {
			errs = append(errs, errors.Annotate(err, "local broadcast"))
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return errors.New(strings.Join(msgs, "; "))
}

func execRun(ctx context.Context, argv []string, stdin io.Reader) error {
	if len(argv) == 0 {
		return errors.NotValidf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
