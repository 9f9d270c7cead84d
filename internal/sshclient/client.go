package sshclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tastythames/host-backup/internal/config"
)

type Config struct {
	User       string
	Port       int
	Timeout    time.Duration
	KeyPath    string
	KnownHosts string
}

// ConfigFrom maps the ssh section of the settings.
func ConfigFrom(s config.SSHConfig) Config {
	return Config{
		User:       s.User,
		Port:       s.Port,
		Timeout:    s.ConnectTimeout,
		KeyPath:    s.KeyPath,
		KnownHosts: s.KnownHosts,
	}
}

// Client runs non-interactive commands on remote hosts with key auth. It
// holds no connection state and is safe for concurrent use.
type Client struct {
	cfg         Config
	hostKeyFunc ssh.HostKeyCallback
}

func New(cfg Config) (*Client, error) {
	hk := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, errors.Annotate(err, "load known_hosts")
		}
		hk = cb
	}
	return &Client{cfg: cfg, hostKeyFunc: hk}, nil
}

// Probe checks that host accepts the configured key by running `true`.
func (c *Client) Probe(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	_, err := c.Run(ctx, host, CmdTrue(), nil)
	return err
}

// Broadcast writes message to every terminal session on host via wall.
func (c *Client) Broadcast(ctx context.Context, host, message string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	out, err := c.Run(ctx, host, CmdWall(), strings.NewReader(message))
	if err != nil {
		return errors.Annotatef(err, "wall on %s: %s", host, strings.TrimSpace(out))
	}
	return nil
}

func (c *Client) signer() (ssh.Signer, error) {
	if c.cfg.KeyPath == "" {
		return nil, errors.NotValidf("empty key path")
	}
	b, err := os.ReadFile(c.cfg.KeyPath)
	if err != nil {
		return nil, errors.Annotate(err, "read private key")
	}
	s, err := ssh.ParsePrivateKey(b)
	if err != nil {
		return nil, errors.Annotate(err, "parse private key")
	}
	return s, nil
}

// Run executes cmd on host using the private key. stdin may be nil.
func (c *Client) Run(ctx context.Context, host string, cmd RemoteCommand, stdin io.Reader) (string, error) {
	if c.cfg.User == "" {
		return "", fmt.Errorf("ssh user is empty")
	}
	signer, err := c.signer()
	if err != nil {
		return "", err
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", c.cfg.Port))

	sshCfg := &ssh.ClientConfig{
		User:            c.cfg.User,
		HostKeyCallback: c.hostKeyFunc,
		Timeout:         c.cfg.Timeout,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
	}

	// Dial with context so it won't hang forever.
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	// The handshake ignores ctx, so bound it with a deadline as well.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	}

	cconn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		return "", err
	}
	client := ssh.NewClient(cconn, chans, reqs)
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if stdin != nil {
		sess.Stdin = stdin
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)

	go func() {
		out, err := sess.CombinedOutput(cmd.String())
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case r := <-done:
		return string(r.out), r.err
	}
}
