package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, *bytes.Buffer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llm-utility", "logs.txt")
	var stdout bytes.Buffer
	return New(Config{Path: path}, &stdout), &stdout, path
}

func TestLoggerCreatesFileLazily(t *testing.T) {
	logger, _, path := newTestLogger(t)

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "file must not exist before the first record")

	logger.Info("Starting fine-tuning startup script")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("Log File Created\n")))
	assert.Contains(t, string(data), `msg="Starting fine-tuning startup script"`)
}

func TestLoggerMirrorsToStdout(t *testing.T) {
	logger, stdout, path := newTestLogger(t)

	logger.Error("One or more required metadata variables are empty.", "missing", "docker_image")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, out := range []string{stdout.String(), string(data)} {
		assert.Contains(t, out, "level=ERROR")
		assert.Contains(t, out, "missing=docker_image")
	}
	assert.Regexp(t, regexp.MustCompile(`time=\d{2}:\d{2}:\d{2} `), stdout.String())
}

func TestLoggerAppends(t *testing.T) {
	logger, _, path := newTestLogger(t)

	logger.Info("first")
	logger.Info("second")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("Log File Created")))
	assert.Less(t, bytes.Index(data, []byte("msg=first")), bytes.Index(data, []byte("msg=second")))
}

func TestLoggerOpenRemovesStaleFile(t *testing.T) {
	logger, _, path := newTestLogger(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("previous job\n"), 0o644))

	require.NoError(t, logger.Open())
	logger.Info("new job")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "previous job")
}

func TestLoggerRename(t *testing.T) {
	logger, _, path := newTestLogger(t)
	logger.Info("before rename")

	renamed := filepath.Join(filepath.Dir(path), "job1.txt")
	require.NoError(t, logger.Rename(renamed))

	data, err := os.ReadFile(renamed)
	require.NoError(t, err)
	assert.Contains(t, string(data), "before rename")

	logger.Info("after rename")
	fresh, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(fresh), "after rename")
	assert.NotContains(t, string(fresh), "before rename")
}

func TestLoggerRenameMissingFile(t *testing.T) {
	logger, _, path := newTestLogger(t)

	err := logger.Rename(filepath.Join(filepath.Dir(path), "job1.txt"))
	assert.True(t, errors.Is(err, ErrLogFileNotFound))
}

func TestLoggerClose(t *testing.T) {
	logger, stdout, path := newTestLogger(t)
	require.NoError(t, logger.Close())

	logger.Info("only stdout")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, stdout.String(), "only stdout")
}
