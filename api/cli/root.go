// Package cli provides the command-line interface of the fine-tuning startup job.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"finetune-orchestrator/config"
	"finetune-orchestrator/core/models"
	"finetune-orchestrator/providers/aws"
	"finetune-orchestrator/providers/gcp"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

// MetadataClient reads and writes the metadata of the instance the job runs on
type MetadataClient interface {
	Identity(ctx context.Context) (models.InstanceIdentity, error)
	ReadAll(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, key, value string) error
}

// App holds the configuration the commands are built from
type App struct {
	cfg         *config.Config
	newMetadata func(ctx context.Context, logger *slog.Logger) (MetadataClient, error)
}

// NewApp creates the command-line application
func NewApp(cfg *config.Config) *App {
	a := &App{cfg: cfg}
	a.newMetadata = a.metadataClient
	return a
}

// NewRootCommand builds the command tree. The root command runs the job.
func (a *App) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "finetune-startup",
		Short: "Run the fine-tuning job of this instance",
		Long: `Runs the fine-tuning job described by the metadata of this instance.

The job downloads the base model and the dataset, fine-tunes the model,
builds and pushes the serving image and uploads the job log. Settings are
read from FT_* environment variables and an optional .env file.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runJob,
	}

	root.AddCommand(a.newMetadataCommand())
	root.AddCommand(a.newArchiveCommand())
	return root
}

// Execute runs the command line
func Execute(ctx context.Context, cfg *config.Config) error {
	return NewApp(cfg).NewRootCommand().ExecuteContext(ctx)
}

func (a *App) metadataClient(ctx context.Context, logger *slog.Logger) (MetadataClient, error) {
	switch models.Provider(a.cfg.CloudProvider) {
	case models.ProviderAWS:
		client, err := aws.NewMetadataClient(ctx, a.cfg.AWSRegion, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case models.ProviderGCP:
		client, err := gcp.NewMetadataClient(ctx, a.cfg.ServiceAccountKey, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unsupported cloud provider %q", a.cfg.CloudProvider)
}

func commandLogger(cmd *cobra.Command, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
