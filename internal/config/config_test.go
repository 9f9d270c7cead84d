package config_test

import (
	"os"
	"path/filepath"
	"time"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/tastythames/host-backup/internal/config"
)

type configSuite struct {
	dir string
}

var _ = gc.Suite(&configSuite{})

func (s *configSuite) SetUpTest(c *gc.C) {
	s.dir = c.MkDir()
	for _, k := range []string{
		"BACKUP_LOG_ROOT", "BACKUP_ALERT_TO", "BACKUP_MAX_PARALLEL",
		"SSH_TIMEOUT_SECONDS", "SSH_PORT", "TEST_BACKUP_PASSWORD",
	} {
		c.Assert(os.Unsetenv(k), jc.ErrorIsNil)
	}
}

func (s *configSuite) write(c *gc.C, name, content string) string {
	p := filepath.Join(s.dir, name)
	c.Assert(os.WriteFile(p, []byte(content), 0o600), jc.ErrorIsNil)
	return p
}

func (s *configSuite) TestDefaults(c *gc.C) {
	st, err := config.Load("")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.MaxParallel, gc.Equals, 4)
	c.Check(st.LogRoot, gc.Equals, "/var/log/cron/backup")
	c.Check(st.LowSpaceKB, gc.Equals, uint64(1000000))
	c.Check(st.SSH.Port, gc.Equals, 22)
	c.Check(st.SSH.User, gc.Equals, "root")
	c.Check(st.SSH.Password(), gc.Equals, "")
	c.Check(st.Transfer.RetryDelay, gc.Equals, 5*time.Second)
	c.Check(st.AlertRecipient, gc.Equals, "")
	c.Check(st.Location(), gc.Equals, time.UTC)
}

func (s *configSuite) TestLoadFile(c *gc.C) {
	p := s.write(c, "settings.yaml", `
max_parallel: 2
log_root: /tmp/logs
alert_recipient: ops@example.com
notify_drift: true
ssh:
  user: backup
  port: 2222
  connect_timeout: 3s
transfer:
  remote_rsync: [sudo, -n, rsync]
`)
	st, err := config.Load(p)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.MaxParallel, gc.Equals, 2)
	c.Check(st.LogRoot, gc.Equals, "/tmp/logs")
	c.Check(st.AlertRecipient, gc.Equals, "ops@example.com")
	c.Check(st.NotifyDrift, jc.IsTrue)
	c.Check(st.SSH.User, gc.Equals, "backup")
	c.Check(st.SSH.Port, gc.Equals, 2222)
	c.Check(st.SSH.ConnectTimeout, gc.Equals, 3*time.Second)
	c.Check(st.Transfer.RemoteRsync, jc.DeepEquals, []string{"sudo", "-n", "rsync"})
}

func (s *configSuite) TestEnvOverrides(c *gc.C) {
	c.Assert(os.Setenv("BACKUP_MAX_PARALLEL", "7"), jc.ErrorIsNil)
	c.Assert(os.Setenv("SSH_PORT", "2022"), jc.ErrorIsNil)
	c.Assert(os.Setenv("BACKUP_ALERT_TO", "root@localhost"), jc.ErrorIsNil)
	defer func() {
		os.Unsetenv("BACKUP_MAX_PARALLEL")
		os.Unsetenv("SSH_PORT")
		os.Unsetenv("BACKUP_ALERT_TO")
	}()

	st, err := config.Load("")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.MaxParallel, gc.Equals, 7)
	c.Check(st.SSH.Port, gc.Equals, 2022)
	c.Check(st.AlertRecipient, gc.Equals, "root@localhost")
}

func (s *configSuite) TestPasswordFromEnv(c *gc.C) {
	c.Assert(os.Setenv("TEST_BACKUP_PASSWORD", "s3cret"), jc.ErrorIsNil)
	defer os.Unsetenv("TEST_BACKUP_PASSWORD")
	p := s.write(c, "settings.yaml", "ssh:\n  password_env: TEST_BACKUP_PASSWORD\n")

	st, err := config.Load(p)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.SSH.Password(), gc.Equals, "s3cret")
}

func (s *configSuite) TestPasswordFromFile(c *gc.C) {
	pw := s.write(c, "pw", "hunter2\n")
	p := s.write(c, "settings.yaml", "ssh:\n  password_file: "+pw+"\n")

	st, err := config.Load(p)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.SSH.Password(), gc.Equals, "hunter2")
}

func (s *configSuite) TestInvalidTimeZone(c *gc.C) {
	p := s.write(c, "settings.yaml", "time_zone: Nowhere/Special\n")
	_, err := config.Load(p)
	c.Assert(err, gc.ErrorMatches, `time_zone "Nowhere/Special" not valid`)
}

func (s *configSuite) TestBadYAML(c *gc.C) {
	p := s.write(c, "settings.yaml", "max_parallel: [\n")
	_, err := config.Load(p)
	c.Assert(err, gc.ErrorMatches, `parse settings .*`)
}
