package logx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
)

// Options selects where diagnostic logs go and how chatty they are.
type Options struct {
	// Verbosity is the number of -v flags. Zero only shows errors and
	// warnings, one adds Info, each further step enables one more V level.
	Verbosity int
	// LogsDir, when set, sends logs to a timestamped file in that directory
	// instead of Stderr.
	LogsDir string
	Stderr  io.Writer
}

// New builds a logr.Logger backed by a slog text handler. The returned closer
// should be closed when logging is no longer needed.
func New(opts Options) (logr.Logger, io.Closer, error) {
	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}
	var closer io.Closer = nopCloser{}

	if opts.LogsDir != "" {
		file, err := openLogFile(opts.LogsDir)
		if err != nil {
			return logr.Discard(), nil, err
		}
		out = file
		closer = file
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: Level(opts.Verbosity)})
	return logr.FromSlogHandler(handler), closer, nil
}

// Level maps a -v count onto the slog level scale used by logr, where
// V(n).Info is emitted at slog.Level(-n).
func Level(verbosity int) slog.Level {
	if verbosity <= 0 {
		return slog.LevelWarn
	}
	return slog.Level(-(verbosity - 1))
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	file, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
