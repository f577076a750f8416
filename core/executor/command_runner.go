package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"

	"finetune-orchestrator/core/models"
)

// Command is an external process invocation
type Command struct {
	Name string
	Args []string
	Env  map[string]string
	Dir  string
}

// CommandRunner runs external processes to completion
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands locally and streams their output into the job log
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a runner logging through logger
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run starts cmd and waits for it. A binary missing from PATH is reported as
// models.ErrMissingDependency.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	path, err := exec.LookPath(c.Name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrMissingDependency, c.Name, err)
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+c.Env[k])
	}

	stdout := &lineWriter{logger: r.logger, stream: "stdout"}
	stderr := &lineWriter{logger: r.logger, stream: "stderr"}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("Running command", "command", c.Name, "args", c.Args)
	err = cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with code %d", c.Name, exitErr.ExitCode())
		}
		return fmt.Errorf("failed to run %s: %w", c.Name, err)
	}
	return nil
}

// lineWriter logs every complete line written to it
type lineWriter struct {
	logger *slog.Logger
	stream string

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(idx+1), "\r\n"))
		if line != "" {
			w.logger.Info(line, "stream", w.stream)
		}
	}
	return len(p), nil
}

// Flush logs a trailing partial line
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.logger.Info(string(bytes.TrimRight(w.buf.Bytes(), "\r\n")), "stream", w.stream)
		w.buf.Reset()
	}
}
