// Package objectstore moves files between the VM and cloud blob storage.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"finetune-orchestrator/storage/archive"
)

// Backend transfers objects for one URI scheme
type Backend interface {
	Upload(ctx context.Context, bucket, key string, src *os.File) error
	Download(ctx context.Context, bucket, key string, dst *os.File) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Extractor unpacks a downloaded archive
type Extractor interface {
	Extract(archivePath, targetDir string) error
}

// Client uploads and downloads files through the backend registered for each scheme
type Client struct {
	backends  map[string]Backend
	extractor Extractor
	logger    *slog.Logger
}

// NewClient creates a new object store client with no backends registered
func NewClient(extractor Extractor, logger *slog.Logger) *Client {
	return &Client{
		backends:  make(map[string]Backend),
		extractor: extractor,
		logger:    logger,
	}
}

// Register makes backend serve URIs with the given scheme ("gs", "s3")
func (c *Client) Register(scheme string, backend Backend) {
	c.backends[scheme] = backend
}

// Upload copies localPath to destinationURI. A destination key ending in "/" gets
// the local file name appended. A missing local file or an unknown scheme is logged
// and skipped without an error; a malformed URI or a failed transfer is returned.
func (c *Client) Upload(ctx context.Context, localPath, destinationURI string) error {
	c.logger.Info("Starting upload", "path", localPath, "uri", destinationURI)

	info, err := os.Stat(localPath)
	if err != nil || info.IsDir() {
		c.logger.Error("Local file does not exist", "path", localPath)
		return nil
	}

	backend, ok := c.backends[schemeOf(destinationURI)]
	if !ok {
		c.logger.Error("Invalid object store URL provided", "uri", destinationURI)
		return nil
	}

	uri, err := ParseURI(destinationURI)
	if err != nil {
		c.logger.Error("Invalid object store URL format", "uri", destinationURI, "error", err)
		return err
	}
	if uri.IsDirectory() {
		uri.Key = uri.Key + filepath.Base(localPath)
	}

	src, err := os.Open(localPath)
	if err != nil {
		c.logger.Error("Error during file upload", "path", localPath, "error", err)
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	c.logger.Info("Uploading", "path", localPath, "uri", uri.String())
	if err := backend.Upload(ctx, uri.Bucket, uri.Key, src); err != nil {
		c.logger.Error("Error during file upload", "uri", uri.String(), "error", err)
		return fmt.Errorf("failed to upload %s to %s: %w", localPath, uri, err)
	}

	exists, err := backend.Exists(ctx, uri.Bucket, uri.Key)
	switch {
	case err != nil:
		c.logger.Error("Could not verify upload", "uri", uri.String(), "error", err)
	case exists:
		c.logger.Info("File successfully uploaded", "path", localPath, "uri", uri.String())
	default:
		c.logger.Error("File was uploaded but does not appear in the bucket", "path", localPath, "uri", uri.String())
	}
	return nil
}

// Download fetches sourceURI to localPath and returns the resulting local path.
// If localPath is an existing directory the object's base name is used inside it.
// Archives are extracted into their parent directory and removed, in which case
// the parent directory is returned.
func (c *Client) Download(ctx context.Context, sourceURI, localPath string) (string, error) {
	c.logger.Info("Downloading file", "uri", sourceURI, "path", localPath)

	backend, ok := c.backends[schemeOf(sourceURI)]
	if !ok {
		c.logger.Error("Invalid object store URL", "uri", sourceURI)
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, sourceURI)
	}

	uri, err := ParseURI(sourceURI)
	if err != nil {
		c.logger.Error("Error downloading file", "uri", sourceURI, "error", err)
		return "", err
	}

	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		localPath = filepath.Join(localPath, path.Base(uri.Key))
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	if err := c.fetch(ctx, backend, uri, localPath); err != nil {
		c.logger.Error("Error downloading file", "uri", sourceURI, "error", err)
		return "", err
	}
	c.logger.Info("File downloaded", "path", localPath)

	if !archive.IsArchive(localPath) {
		return localPath, nil
	}

	targetDir := filepath.Dir(localPath)
	if err := c.extractor.Extract(localPath, targetDir); err != nil {
		c.logger.Error("Error extracting archive", "path", localPath, "error", err)
		return "", fmt.Errorf("failed to extract %s: %w", localPath, err)
	}
	if err := os.Remove(localPath); err != nil {
		return "", fmt.Errorf("failed to remove archive %s: %w", localPath, err)
	}
	return targetDir, nil
}

func (c *Client) fetch(ctx context.Context, backend Backend, uri URI, localPath string) error {
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	if err := backend.Download(ctx, uri.Bucket, uri.Key, dst); err != nil {
		dst.Close()
		os.Remove(localPath)
		return fmt.Errorf("failed to download %s: %w", uri, err)
	}
	return dst.Close()
}
