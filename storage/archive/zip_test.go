package archive

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finetune-orchestrator/core/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, body := range entries {
		dst, err := w.Create(name)
		require.NoError(t, err)
		_, err = dst.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestExtractDefaultsToParentDir(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "model.zip")
	writeZip(t, archivePath, map[string]string{
		"config.json":               `{"model_type":"gpt2"}`,
		"tokenizer/vocab.json":      "{}",
		"weights/model.safetensors": "weights",
	})

	svc := NewZipService(logging.Discard())
	require.NoError(t, svc.Extract(archivePath, ""))

	for _, rel := range []string{"config.json", "tokenizer/vocab.json", "weights/model.safetensors"} {
		assert.FileExists(t, filepath.Join(dir, rel))
	}
}

func TestExtractCreatesTargetDir(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "data.zip")
	writeZip(t, archivePath, map[string]string{"a.txt": "a"})

	target := filepath.Join(dir, "nested", "out")
	require.NoError(t, NewZipService(logging.Discard()).Extract(archivePath, target))

	data, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	writeZip(t, archivePath, map[string]string{"../escape.txt": "x"})

	err := NewZipService(logging.Discard()).Extract(archivePath, filepath.Join(dir, "out"))
	assert.True(t, errors.Is(err, ErrUnsafePath))
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestExtractRejectsTraversalBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, name := range []string{"a.txt", "b/c.txt", "../escape.txt"} {
		dst, err := w.Create(name)
		require.NoError(t, err)
		_, err = dst.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	target := filepath.Join(dir, "out")
	err = NewZipService(logging.Discard()).Extract(archivePath, target)

	assert.True(t, errors.Is(err, ErrUnsafePath))
	assert.NoFileExists(t, filepath.Join(target, "a.txt"))
	assert.NoFileExists(t, filepath.Join(target, "b", "c.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestExtractCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(archivePath, []byte("not a zip"), 0o644))

	assert.Error(t, NewZipService(logging.Discard()).Extract(archivePath, ""))
}

func TestCompress(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "finetuned_2024-01-02_03-04-05")
	require.NoError(t, os.MkdirAll(filepath.Join(source, "checkpoint-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "model.safetensors"), []byte("w"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "checkpoint-1", "trainer_state.json"), []byte("{}"), 0o644))

	svc := NewZipService(logging.Discard())
	svc.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	archivePath, err := svc.Compress(source, "m")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "m_20240102_030405.zip"), archivePath)

	reader, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer reader.Close()

	var names []string
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"model.safetensors", "checkpoint-1/trainer_state.json"}, names)
}

func TestCompressRequiresDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewZipService(logging.Discard()).Compress(file, "m")
	assert.Error(t, err)
}

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("/llm-utility/m.zip"))
	assert.False(t, IsArchive("/llm-utility/d.jsonl"))
}
