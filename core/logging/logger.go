// Package logging provides the job log: a text log file created on first write
// and mirrored to standard output.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// ErrLogFileNotFound is returned by Rename when nothing has been logged to the file yet
var ErrLogFileNotFound = errors.New("log file not found")

const fileHeader = "Log File Created\n"

// Config locates the job log on disk and in the object store
type Config struct {
	Path              string
	UploadDestination string
	Level             slog.Level
}

// Logger is the job-scoped logger. It embeds *slog.Logger, so components that
// only need to log receive Logger.Logger.
type Logger struct {
	*slog.Logger
	cfg  Config
	file *lazyFile
}

// New creates a logger writing text records to stdout and to cfg.Path.
// The file is not touched until the first record is written.
func New(cfg Config, stdout io.Writer) *Logger {
	file := &lazyFile{path: cfg.Path}
	opts := &slog.HandlerOptions{Level: cfg.Level, ReplaceAttr: shortTime}

	handler := slogmulti.Fanout(
		slog.NewTextHandler(stdout, opts),
		slog.NewTextHandler(file, opts),
	)

	return &Logger{
		Logger: slog.New(handler),
		cfg:    cfg,
		file:   file,
	}
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.cfg
}

// Path returns the path of the active log file
func (l *Logger) Path() string {
	return l.cfg.Path
}

// Open starts the log lifecycle for a new job by removing a file left behind by a previous job
func (l *Logger) Open() error {
	l.file.mu.Lock()
	defer l.file.mu.Unlock()

	l.file.closed = false
	if err := os.Remove(l.cfg.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale log file: %w", err)
	}
	return nil
}

// Rename moves the log file to newPath. Records written afterwards start a fresh
// file at the original path.
func (l *Logger) Rename(newPath string) error {
	l.file.mu.Lock()
	defer l.file.mu.Unlock()

	if _, err := os.Stat(l.cfg.Path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrLogFileNotFound, l.cfg.Path)
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := os.Rename(l.cfg.Path, newPath); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}
	return nil
}

// Close ends the log lifecycle; later records only reach stdout
func (l *Logger) Close() error {
	l.file.mu.Lock()
	defer l.file.mu.Unlock()
	l.file.closed = true
	return nil
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func shortTime(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.String(slog.TimeKey, a.Value.Time().Format("15:04:05"))
	}
	return a
}

// lazyFile appends each record with its own open/close, so the file may be
// deleted or renamed between records without losing later ones.
type lazyFile struct {
	mu     sync.Mutex
	path   string
	closed bool
}

func (f *lazyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return len(p), nil
	}

	_, statErr := os.Stat(f.path)
	created := os.IsNotExist(statErr)
	if created {
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return 0, err
		}
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if created {
		if _, err := file.WriteString(fileHeader); err != nil {
			return 0, err
		}
	}
	return file.Write(p)
}
