package runlog_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/tastythames/host-backup/internal/runlog"
)

type runlogSuite struct{}

var _ = gc.Suite(&runlogSuite{})

func (s *runlogSuite) TestOpenWritesFileAndEchoesWarnings(c *gc.C) {
	root := filepath.Join(c.MkDir(), "logs")
	var console bytes.Buffer
	lg, err := runlog.Open(root, "10.0.0.5", "2026-10-18_01-02-03", slog.New(slog.NewTextHandler(&console, nil)))
	c.Assert(err, jc.ErrorIsNil)

	c.Check(lg.Path, gc.Equals, filepath.Join(root, "10.0.0.5---2026-10-18_01-02-03.log"))

	lg.Info("backup started")
	fmt.Fprintln(lg.Writer(), "sent 1234 bytes")
	lg.Warn("low disk space")
	c.Assert(lg.Close(), jc.ErrorIsNil)

	b, err := os.ReadFile(lg.Path)
	c.Assert(err, jc.ErrorIsNil)
	out := string(b)
	c.Check(out, jc.Contains, `level=INFO msg="backup started" host=10.0.0.5`)
	c.Check(out, jc.Contains, "sent 1234 bytes\n")
	c.Check(out, jc.Contains, `level=WARN msg="low disk space"`)

	c.Check(console.String(), jc.Contains, `msg="low disk space" host=10.0.0.5`)
	c.Check(strings.Contains(console.String(), "backup started"), jc.IsFalse)
}

func (s *runlogSuite) TestOpenAppends(c *gc.C) {
	root := c.MkDir()
	for i := 0; i < 2; i++ {
		lg, err := runlog.Open(root, "web1", "ts", nil)
		c.Assert(err, jc.ErrorIsNil)
		lg.Info("line")
		c.Assert(lg.Close(), jc.ErrorIsNil)
	}
	b, err := os.ReadFile(filepath.Join(root, "web1---ts.log"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(strings.Count(string(b), `msg=line`), gc.Equals, 2)
}
