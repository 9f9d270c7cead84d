// Package runlog writes the transcript of a single host run.
//
// Structured lines and raw transfer tool output share one append-only file,
// <log_root>/<host>---<timestamp>.log. Warnings and errors are also echoed to
// the console logger.
package runlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// FileName returns the transcript file name for a run.
func FileName(host, ts string) string {
	return host + "---" + ts + ".log"
}

type Log struct {
	*slog.Logger
	Path string
	f    *os.File
}

// Open creates logRoot if needed and opens the run's transcript for append.
// console may be nil.
func Open(logRoot, host, ts string, console *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(logRoot, 0o755); err != nil {
		return nil, errors.Annotate(err, "create log root")
	}
	p := filepath.Join(logRoot, FileName(host, ts))
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, errors.Annotate(err, "open run log")
	}

	var h slog.Handler = slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	if console != nil {
		h = &teeHandler{
			file:    h,
			console: console.Handler(),
		}
	}
	return &Log{
		Logger: slog.New(h).With("host", host),
		Path:   p,
		f:      f,
	}, nil
}

// Writer returns the raw transcript, for tool output.
func (l *Log) Writer() io.Writer { return l.f }

func (l *Log) Close() error { return l.f.Close() }

// teeHandler writes every record to the file and WARN and above to the
// console as well.
type teeHandler struct {
	file    slog.Handler
	console slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.file.Enabled(ctx, level) || h.console.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.file.Handle(ctx, r)
	if r.Level >= slog.LevelWarn && h.console.Enabled(ctx, r.Level) {
		_ = h.console.Handle(ctx, r.Clone())
	}
	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{
		file:    h.file.WithAttrs(attrs),
		console: h.console.WithAttrs(attrs),
	}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{
		file:    h.file.WithGroup(name),
		console: h.console.WithGroup(name),
	}
}
