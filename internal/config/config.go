// Package config holds the tunables of a backup run. Settings are loaded
// once at startup and then passed by value; nothing in here is mutated
// after Load returns.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxParallel    = 4
	DefaultLogRoot        = "/var/log/cron/backup"
	DefaultLowSpaceKB     = 1000000
	DefaultTimeZone       = "UTC"
	DefaultSSHPort        = 22
	DefaultConnectTimeout = 5 * time.Second
	DefaultRetryDelay     = 5 * time.Second
)

type Settings struct {
	MaxParallel    int    `yaml:"max_parallel"`
	LogRoot        string `yaml:"log_root"`
	AlertRecipient string `yaml:"alert_recipient"`
	NotifyDrift    bool   `yaml:"notify_drift"`
	TimeZone       string `yaml:"time_zone"`
	LowSpaceKB     uint64 `yaml:"low_space_kb"`
	// MetricsTextfile, when set, receives a Prometheus textfile summary of
	// the run.
	MetricsTextfile string `yaml:"metrics_textfile"`

	SSH      SSHConfig      `yaml:"ssh"`
	Transfer TransferConfig `yaml:"transfer"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type SSHConfig struct {
	User           string        `yaml:"user"`
	Port           int           `yaml:"port"`
	KeyPath        string        `yaml:"key_path"`
	KnownHosts     string        `yaml:"known_hosts"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// fallback password, e.g. BACKUP_SSH_PASSWORD
	PasswordEnv  string `yaml:"password_env"`
	PasswordFile string `yaml:"password_file"`

	password string
}

// Password returns the resolved fallback password, empty when none is
// configured.
func (c SSHConfig) Password() string { return c.password }

// WithPassword returns a copy of c carrying password.
func (c SSHConfig) WithPassword(password string) SSHConfig {
	c.password = password
	return c
}

type TransferConfig struct {
	Rsync   string `yaml:"rsync"`
	SSH     string `yaml:"ssh"`
	Sshpass string `yaml:"sshpass"`

	// RemoteRsync replaces the rsync run on the remote side, e.g.
	// ["sudo", "-n", "rsync"] when not every file is readable by the
	// backup user.
	RemoteRsync []string `yaml:"remote_rsync"`

	ExtraArgs  []string      `yaml:"extra_args"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type NotifyConfig struct {
	Mail []string `yaml:"mail"`
	Wall []string `yaml:"wall"`
}

// Default returns the settings used when no file is given.
func Default() Settings {
	s := Settings{}
	s.normalize()
	return s
}

// Load reads the YAML settings file at path (optional) and applies defaults
// and environment overrides.
func Load(path string) (Settings, error) {
	var s Settings
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, errors.Annotate(err, "read settings")
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return Settings{}, errors.Annotatef(err, "parse settings %s", path)
		}
	}
	s.applyEnv()
	s.normalize()

	pw, err := resolvePassword(s.SSH)
	if err != nil {
		return Settings{}, errors.Trace(err)
	}
	s.SSH.password = pw

	if err := s.Validate(); err != nil {
		return Settings{}, errors.Trace(err)
	}
	return s, nil
}

func getenv(k, fb string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fb
}

func (s *Settings) applyEnv() {
	s.LogRoot = getenv("BACKUP_LOG_ROOT", s.LogRoot)
	s.AlertRecipient = getenv("BACKUP_ALERT_TO", s.AlertRecipient)

	if v := os.Getenv("BACKUP_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxParallel = n
		}
	}
	if v := os.Getenv("SSH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.SSH.ConnectTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SSH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.SSH.Port = n
		}
	}
}

func (s *Settings) normalize() {
	if s.MaxParallel <= 0 {
		s.MaxParallel = DefaultMaxParallel
	}
	if s.LogRoot == "" {
		s.LogRoot = DefaultLogRoot
	}
	if s.LowSpaceKB == 0 {
		s.LowSpaceKB = DefaultLowSpaceKB
	}
	if s.TimeZone == "" {
		s.TimeZone = DefaultTimeZone
	}
	if s.SSH.User == "" {
		s.SSH.User = "root"
	}
	if s.SSH.Port <= 0 {
		s.SSH.Port = DefaultSSHPort
	}
	if s.SSH.KeyPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.SSH.KeyPath = home + "/.ssh/id_rsa"
		}
	}
	if s.SSH.ConnectTimeout <= 0 {
		s.SSH.ConnectTimeout = DefaultConnectTimeout
	}
	if s.Transfer.Rsync == "" {
		s.Transfer.Rsync = "rsync"
	}
	if s.Transfer.SSH == "" {
		s.Transfer.SSH = "ssh"
	}
	if s.Transfer.Sshpass == "" {
		s.Transfer.Sshpass = "sshpass"
	}
	if s.Transfer.RetryDelay <= 0 {
		s.Transfer.RetryDelay = DefaultRetryDelay
	}
	if len(s.Notify.Mail) == 0 {
		s.Notify.Mail = []string{"mail"}
	}
	if len(s.Notify.Wall) == 0 {
		s.Notify.Wall = []string{"wall"}
	}
}

func resolvePassword(c SSHConfig) (string, error) {
	if c.PasswordEnv != "" {
		if v := os.Getenv(c.PasswordEnv); v != "" {
			return v, nil
		}
	}
	if c.PasswordFile != "" {
		b, err := os.ReadFile(c.PasswordFile)
		if err != nil {
			return "", errors.Annotate(err, "read password file")
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
	return "", nil
}

// Validate reports settings that cannot be used for a run.
func (s Settings) Validate() error {
	if s.MaxParallel <= 0 {
		return errors.NotValidf("max_parallel %d", s.MaxParallel)
	}
	if s.LogRoot == "" {
		return errors.NotValidf("empty log_root")
	}
	if _, err := time.LoadLocation(s.TimeZone); err != nil {
		return errors.NotValidf("time_zone %q", s.TimeZone)
	}
	if s.SSH.User == "" {
		return errors.NotValidf("empty ssh user")
	}
	for _, r := range s.Transfer.RemoteRsync {
		if strings.TrimSpace(r) == "" {
			return errors.NotValidf("blank word in transfer.remote_rsync")
		}
	}
	return nil
}

// Location returns the time zone run timestamps are formatted in.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
