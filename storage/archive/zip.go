// Package archive compresses directories into zip archives and extracts them.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Extension is the archive file suffix recognised by the object store client
const Extension = ".zip"

// ErrUnsafePath is returned when an archive entry would land outside the target directory
var ErrUnsafePath = errors.New("archive entry escapes target directory")

// ZipService compresses and extracts zip archives
type ZipService struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewZipService creates a new zip service
func NewZipService(logger *slog.Logger) *ZipService {
	return &ZipService{
		logger: logger,
		now:    time.Now,
	}
}

// IsArchive reports whether name carries the archive extension
func IsArchive(name string) bool {
	return strings.HasSuffix(name, Extension)
}

// Extract unpacks archivePath into targetDir, preserving relative paths.
// An empty targetDir means the archive's parent directory.
func (s *ZipService) Extract(archivePath, targetDir string) error {
	if targetDir == "" {
		targetDir = filepath.Dir(archivePath)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	reader, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) {
		reader.Close()
		return fmt.Errorf("%w: %s", ErrUnsafePath, archivePath)
	}
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	// nothing is written unless every entry stays inside targetDir
	for _, entry := range reader.File {
		if !filepath.IsLocal(filepath.FromSlash(entry.Name)) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, entry.Name)
		}
	}

	for _, entry := range reader.File {
		if err := extractEntry(entry, targetDir); err != nil {
			return err
		}
	}

	s.logger.Info("Extracted archive", "archive", archivePath, "target", targetDir)
	return nil
}

func extractEntry(entry *zip.File, targetDir string) error {
	dest := filepath.Join(targetDir, filepath.FromSlash(entry.Name))

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to read archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	return dst.Close()
}

// Compress writes every file under sourceDir into {nameHint}_{timestamp}.zip,
// stored next to sourceDir, and returns the archive path.
func (s *ZipService) Compress(sourceDir, nameHint string) (string, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", sourceDir)
	}

	sourceDir = filepath.Clean(sourceDir)
	name := fmt.Sprintf("%s_%s%s", nameHint, s.now().Format("20060102_150405"), Extension)
	archivePath := filepath.Join(filepath.Dir(sourceDir), name)

	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	writer := zip.NewWriter(out)
	walkErr := filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		return addFile(writer, path, filepath.ToSlash(rel))
	})

	closeErr := errors.Join(writer.Close(), out.Close())
	if err := errors.Join(walkErr, closeErr); err != nil {
		os.Remove(archivePath)
		return "", fmt.Errorf("failed to compress %s: %w", sourceDir, err)
	}

	s.logger.Info("Model files zipped", "archive", name)
	return archivePath, nil
}

func addFile(writer *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := writer.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
