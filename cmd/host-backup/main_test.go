package main

import (
	"bytes"
	"os"
	"path/filepath"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
)

type mainSuite struct {
	stdout, stderr bytes.Buffer
}

var _ = gc.Suite(&mainSuite{})

func (s *mainSuite) SetUpTest(c *gc.C) {
	s.stdout.Reset()
	s.stderr.Reset()
}

func (s *mainSuite) TestMissingArgs(c *gc.C) {
	code := Execute(nil, &s.stdout, &s.stderr)
	c.Check(code, gc.Equals, 1)
	c.Check(s.stderr.String(), jc.Contains, "ConfigMissingArgs")
	c.Check(s.stdout.String(), jc.Contains, "Usage:")

	s.stderr.Reset()
	code = Execute([]string{"/etc/backup.d"}, &s.stdout, &s.stderr)
	c.Check(code, gc.Equals, 1)
	c.Check(s.stderr.String(), jc.Contains, "ConfigMissingArgs")
}

func (s *mainSuite) TestTooManyArgs(c *gc.C) {
	code := Execute([]string{"a", "b", "c"}, &s.stdout, &s.stderr)
	c.Check(code, gc.Equals, 1)
}

func (s *mainSuite) TestEmptyFleetWritesMetrics(c *gc.C) {
	store := c.MkDir()
	backupRoot := c.MkDir()
	logRoot := filepath.Join(c.MkDir(), "logs")
	prom := filepath.Join(c.MkDir(), "host_backup.prom")

	code := Execute([]string{
		"--log-root", logRoot,
		"--metrics-textfile", prom,
		store, backupRoot,
	}, &s.stdout, &s.stderr)
	c.Check(code, gc.Equals, 0)
	c.Check(s.stderr.String(), jc.Contains, `msg="backup run finished" hosts=0 failed=0`)

	b, err := os.ReadFile(prom)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(b), jc.Contains, "host_backup_hosts 0")
}

func (s *mainSuite) TestUnreadableStoreStillExitsZero(c *gc.C) {
	code := Execute([]string{
		"--log-root", c.MkDir(),
		filepath.Join(c.MkDir(), "missing"), c.MkDir(),
	}, &s.stdout, &s.stderr)
	c.Check(code, gc.Equals, 0)
	c.Check(s.stderr.String(), jc.Contains, `msg="cannot enumerate hosts"`)
}

func (s *mainSuite) TestBadSettingsFile(c *gc.C) {
	p := filepath.Join(c.MkDir(), "settings.yaml")
	c.Assert(os.WriteFile(p, []byte("time_zone: Nowhere/Special\n"), 0o644), jc.ErrorIsNil)
	code := Execute([]string{"--config", p, c.MkDir(), c.MkDir()}, &s.stdout, &s.stderr)
	c.Check(code, gc.Equals, 1)
	c.Check(s.stderr.String(), jc.Contains, "not valid")
}
