// Package report surfaces installer progress to the operator and to a
// persistent log. The file log is append-only and best effort: a log that
// cannot be opened or written never aborts a run.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Reporter writes leveled, timestamped records to the console and, when
// available, to the installer log file.
type Reporter struct {
	console *slog.Logger
	file    *slog.Logger
	closer  io.Closer
}

// New creates a reporter logging to stderr and to the given file path.
// An unopenable file degrades to console-only with a warning.
func New(logPath string) *Reporter {
	r := &Reporter{
		console: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	if logPath == "" {
		return r
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err == nil {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err == nil {
			r.file = slog.New(slog.NewTextHandler(f, nil))
			r.closer = f
			return r
		}
	}

	r.console.Warn("log_file_unavailable", "path", logPath)
	return r
}

// Close releases the log file, if one was opened.
func (r *Reporter) Close() {
	if r.closer != nil {
		r.closer.Close()
	}
}

func (r *Reporter) Info(msg string, args ...any) {
	r.console.Info(msg, args...)
	if r.file != nil {
		r.file.Info(msg, args...)
	}
}

func (r *Reporter) Warn(msg string, args ...any) {
	r.console.Warn(msg, args...)
	if r.file != nil {
		r.file.Warn(msg, args...)
	}
}

func (r *Reporter) Error(msg string, args ...any) {
	r.console.Error(msg, args...)
	if r.file != nil {
		r.file.Error(msg, args...)
	}
}

// Progress prints a plain operator-facing line in addition to the log record.
func (r *Reporter) Progress(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	if r.file != nil {
		r.file.Info("progress", "message", fmt.Sprintf(format, args...))
	}
}
