package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Workspace is the job's working directory on the VM
type Workspace struct {
	root     string
	preserve map[string]bool
	logger   *slog.Logger
}

// New creates a workspace rooted at root. Paths in preserve survive Clear.
func New(root string, logger *slog.Logger, preserve ...string) *Workspace {
	keep := make(map[string]bool, len(preserve))
	for _, p := range preserve {
		keep[filepath.Clean(p)] = true
	}
	return &Workspace{
		root:     filepath.Clean(root),
		preserve: keep,
		logger:   logger,
	}
}

// Root returns the working directory
func (w *Workspace) Root() string {
	return w.root
}

// Path joins elem onto the working directory
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.root}, elem...)...)
}

// Clear empties the working directory, files first and then subdirectories.
// The directory itself is kept, and created when absent.
func (w *Workspace) Clear() error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("failed to read working directory: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		path := filepath.Join(w.root, entry.Name())
		if w.preserve[path] {
			continue
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}

	w.logger.Debug("Working directory cleared", "path", w.root, "removed_dirs", len(dirs))
	return nil
}
