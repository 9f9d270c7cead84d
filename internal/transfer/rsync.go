package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"

	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"

	"github.com/tastythames/host-backup/internal/auth"
	"github.com/tastythames/host-backup/internal/config"
	"github.com/tastythames/host-backup/internal/sshclient"
)

// Command is a local process invocation. Env is added to the inherited
// environment.
type Command struct {
	Argv []string
	Env  []string
}

// RunFunc runs a Command with stdout and stderr sent to out.
type RunFunc func(ctx context.Context, cmd Command, out io.Writer) error

// Rsync is the rsync-over-ssh Syncer.
type Rsync struct {
	cfg        config.TransferConfig
	ssh        config.SSHConfig
	remoteSync *sshclient.RemoteCommand
	run        RunFunc
}

// NewRsync returns an Rsync for the settings. run may be nil to use os/exec.
func NewRsync(s config.Settings, run RunFunc) (*Rsync, error) {
	r := &Rsync{cfg: s.Transfer, ssh: s.SSH, run: run}
	if r.run == nil {
		r.run = execRun
	}
	if len(s.Transfer.RemoteRsync) > 0 {
		rc, err := sshclient.Command(s.Transfer.RemoteRsync...)
		if err != nil {
			return nil, errors.Annotate(err, "transfer.remote_rsync")
		}
		r.remoteSync = &rc
	}
	return r, nil
}

func (r *Rsync) sshCommand(m auth.Method) string {
	args := []string{
		r.cfg.SSH,
		"-p", strconv.Itoa(r.ssh.Port),
		"-l", r.ssh.User,
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(r.ssh.ConnectTimeout.Seconds())),
	}
	if r.ssh.KnownHosts != "" {
		args = append(args, "-o", "UserKnownHostsFile="+r.ssh.KnownHosts, "-o", "StrictHostKeyChecking=yes")
	} else {
		args = append(args, "-o", "StrictHostKeyChecking=no")
	}
	switch m {
	case auth.Key:
		args = append(args, "-i", r.ssh.KeyPath, "-o", "BatchMode=yes")
	case auth.Password:
		args = append(args,
			"-o", "PubkeyAuthentication=no",
			"-o", "PreferredAuthentications=password,keyboard-interactive",
			"-o", "NumberOfPasswordPrompts=1",
		)
	}
	return shellquote.Join(args...)
}

// Command builds the invocation for spec. The password, when used, is passed
// to sshpass through SSHPASS and never appears in Argv.
func (r *Rsync) Command(spec Spec) (Command, error) {
	if spec.Method == auth.None {
		return Command{}, errors.NotValidf("transfer without auth method")
	}

	remote := path.Clean("/" + spec.RemotePath)
	dest := Destination(spec.TargetRoot, remote)
	src := spec.Host + ":" + remote
	dst := filepath.Dir(dest) + string(filepath.Separator)
	if remote == "/" {
		src = spec.Host + ":/"
		dst = dest + string(filepath.Separator)
	}

	argv := []string{
		r.cfg.Rsync,
		"--archive",
		"--delete",
		"--numeric-ids",
		"--protect-args",
		"-e", r.sshCommand(spec.Method),
	}
	if r.remoteSync != nil {
		argv = append(argv, "--rsync-path", r.remoteSync.String())
	}
	argv = append(argv, r.cfg.ExtraArgs...)
	argv = append(argv, src, dst)

	cmd := Command{Argv: argv}
	if spec.Method == auth.Password {
		pw := r.ssh.Password()
		if pw == "" {
			return Command{}, errors.NotValidf("password auth without password")
		}
		cmd.Argv = append([]string{r.cfg.Sshpass, "-e"}, argv...)
		cmd.Env = []string{"SSHPASS=" + pw}
	}
	return cmd, nil
}

// Sync creates the destination's parent and runs rsync once.
func (r *Rsync) Sync(ctx context.Context, spec Spec, out io.Writer) error {
	cmd, err := r.Command(spec)
	if err != nil {
		return errors.Trace(err)
	}
	parent := filepath.Dir(Destination(spec.TargetRoot, spec.RemotePath))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.Annotate(err, "create destination")
	}
	return r.run(ctx, cmd, out)
}

func execRun(ctx context.Context, c Command, out io.Writer) error {
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c.Argv[0], err)
	}
	return nil
}
