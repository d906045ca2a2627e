// Package logging builds the run logger. Console progress is printed by cmd;
// the logger carries diagnostic detail to a persistent log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// New returns a logger writing to w at level, tagged with run.
func New(w io.Writer, level, run string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       log.LogfmtFormatter,
	})
	if run != "" {
		logger = logger.With("run", run)
	}
	return logger, nil
}

// Open appends to the log file at path, creating it and its directory as needed.
// Every logger it returns carries a fresh run ID. The returned func closes the file.
func Open(path, level string) (*log.Logger, func() error, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("cannot create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}
	logger, err := New(f, level, NewRunID())
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return logger, f.Close, nil
}

// NewRunID returns an identifier that ties together the log lines of one run.
func NewRunID() string {
	return uuid.NewString()
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
