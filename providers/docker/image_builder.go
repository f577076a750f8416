package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"finetune-orchestrator/core/models"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	archive "github.com/moby/go-archive"
)

// API is the subset of the Docker engine client used to build and push images
type API interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ImagePush(ctx context.Context, image string, options image.PushOptions) (io.ReadCloser, error)
}

// BuilderConfig describes the fixed build context of the job image
type BuilderConfig struct {
	ContextDir string
	Dockerfile string
}

// ImageBuilder builds the serving image and pushes it to its registry
type ImageBuilder struct {
	api    API
	cfg    BuilderConfig
	auth   RegistryAuth
	logger *slog.Logger
}

// NewImageBuilder creates a builder backed by the local Docker daemon
func NewImageBuilder(cfg BuilderConfig, auth RegistryAuth, logger *slog.Logger) (*ImageBuilder, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: docker client: %v", models.ErrMissingDependency, err)
	}
	return NewImageBuilderWithAPI(cli, cfg, auth, logger), nil
}

// NewImageBuilderWithAPI creates a builder from an explicit engine client
func NewImageBuilderWithAPI(api API, cfg BuilderConfig, auth RegistryAuth, logger *slog.Logger) *ImageBuilder {
	if cfg.Dockerfile == "" {
		cfg.Dockerfile = "Dockerfile"
	}
	if auth == nil {
		auth = AnonymousAuth{}
	}
	return &ImageBuilder{api: api, cfg: cfg, auth: auth, logger: logger}
}

// Build builds imageName from the configured context without cache
func (b *ImageBuilder) Build(ctx context.Context, imageName string) error {
	b.logger.Info("Building Docker image", "image", imageName, "context", b.cfg.ContextDir)

	tar, err := archive.TarWithOptions(b.cfg.ContextDir, &archive.TarOptions{})
	if err != nil {
		b.logger.Error("Error building image", "error", err)
		return fmt.Errorf("failed to archive build context %s: %w", b.cfg.ContextDir, err)
	}
	defer tar.Close()

	resp, err := b.api.ImageBuild(ctx, tar, build.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: b.cfg.Dockerfile,
		NoCache:    true,
		Remove:     true,
	})
	if err != nil {
		b.logger.Error("Error building image", "error", err)
		return daemonError("build", err)
	}
	defer resp.Body.Close()

	err = decodeStream(resp.Body, func(msg *jsonmessage.JSONMessage) {
		if line := strings.TrimSpace(msg.Stream); line != "" {
			b.logger.Info(line)
		}
	})
	if err != nil {
		b.logger.Error("Error building image", "error", err)
		return fmt.Errorf("failed to build image %s: %w", imageName, err)
	}

	b.logger.Info("Image built successfully", "image", imageName)
	return nil
}

// Push pushes imageName and stops at the first error reported by the daemon
func (b *ImageBuilder) Push(ctx context.Context, imageName string) error {
	b.logger.Info("Pushing Docker image", "image", imageName)

	auth, err := b.auth.Encode(ctx, imageName)
	if err != nil {
		b.logger.Error(fmt.Sprintf("Error pushing image: %v", err))
		return fmt.Errorf("failed to get registry credentials: %w", err)
	}

	body, err := b.api.ImagePush(ctx, imageName, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		b.logger.Error(fmt.Sprintf("Error pushing image: %v", err))
		return daemonError("push", err)
	}
	defer body.Close()

	err = decodeStream(body, func(msg *jsonmessage.JSONMessage) {
		if msg.Status == "" {
			return
		}
		if msg.ID != "" {
			b.logger.Info(msg.Status, "layer", msg.ID)
			return
		}
		b.logger.Info(msg.Status)
	})
	if err != nil {
		b.logger.Error(fmt.Sprintf("Error pushing image: %v", err))
		return fmt.Errorf("failed to push image %s: %w", imageName, err)
	}

	b.logger.Info("Image pushed successfully", "image", imageName)
	return nil
}

// decodeStream reads daemon progress messages until EOF or the first errorDetail
func decodeStream(r io.Reader, handle func(*jsonmessage.JSONMessage)) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode daemon response: %w", err)
		}
		if msg.Error != nil {
			return errors.New(msg.Error.Message)
		}
		handle(&msg)
	}
}

func daemonError(op string, err error) error {
	if client.IsErrConnectionFailed(err) {
		return fmt.Errorf("%w: docker daemon unreachable during %s: %v", models.ErrMissingDependency, op, err)
	}
	return fmt.Errorf("failed to %s image: %w", op, err)
}
