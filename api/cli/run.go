package cli

import (
	"context"
	"time"

	"finetune-orchestrator/config"
	"finetune-orchestrator/core/executor"
	"finetune-orchestrator/core/logging"
	"finetune-orchestrator/core/monitoring"
	"finetune-orchestrator/core/orchestrator"
	"finetune-orchestrator/core/workspace"
	"finetune-orchestrator/providers/docker"
	"finetune-orchestrator/storage/archive"

	"github.com/spf13/cobra"
)

const (
	heartbeatInterval     = time.Minute
	statusShutdownTimeout = 5 * time.Second
)

func (a *App) runJob(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	jobLog := logging.New(logging.Config{
		Path:              a.cfg.LogFile,
		UploadDestination: a.cfg.LogDestination,
		Level:             a.cfg.LogLevel,
	}, cmd.OutOrStdout())
	if err := jobLog.Open(); err != nil {
		return err
	}
	logger := jobLog.Logger

	store, closeStore := a.objectStore(ctx, logger)
	defer closeStore()

	var metadata orchestrator.MetadataReader
	if client, err := a.newMetadata(ctx, logger); err != nil {
		metadata = unavailableMetadata{err: err}
	} else {
		metadata = client
	}

	var images orchestrator.ImageBuilder
	builder, err := docker.NewImageBuilder(docker.BuilderConfig{
		ContextDir: a.cfg.BuildContext,
		Dockerfile: a.cfg.Dockerfile,
	}, docker.ImageAuth{
		Username:        a.cfg.RegistryUsername,
		Password:        a.cfg.RegistryPassword,
		CredentialsFile: a.cfg.ServiceAccountKey,
	}, logger)
	if err != nil {
		images = unavailableImages{err: err}
	} else {
		images = builder
	}

	state := a.stateStore(ctx, logger)
	defer state.Close()

	tracker := monitoring.NewJobTracker(logger)
	trackerCtx, stopTracker := context.WithCancel(ctx)
	defer stopTracker()
	go tracker.Start(trackerCtx, heartbeatInterval)

	if a.cfg.StatusAddr != "" {
		server := startStatusServer(a.cfg.StatusAddr, tracker, state, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("Status server forced to shutdown", "error", err)
			}
		}()
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Metadata:  metadata,
		Store:     store,
		Trainer:   executor.NewTrainingService(executor.NewExecRunner(logger), a.cfg.TrainerCommand, a.cfg.QuantizeCommand, logger),
		Packager:  archive.NewZipService(logger),
		Images:    images,
		Workspace: workspace.New(a.cfg.WorkDir, logger, a.cfg.LogFile),
		Log:       jobLog,
		State:     state,
		Tracker:   tracker,
		Logger:    logger,
	}, orchestrator.Options{
		LogDestination:      a.cfg.LogDestination,
		ArtifactDestination: a.cfg.ArtifactDestination,
		Quantize:            a.cfg.Quantize,
		Resume:              a.cfg.Resume,
	})

	outcome, runErr := orch.Run(ctx)

	// the log has been uploaded; later records only reach stdout
	jobLog.Close()
	logger.Info("Fine-tuning job finished",
		"status", outcome.Status,
		"fine_tuning_id", outcome.FineTuningID,
		"run_id", outcome.RunID,
		"log", outcome.LogURI,
		"duration", outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Second),
	)

	return exitError(a.cfg.ExitPolicy, runErr)
}

// exitError is the error the process reports for a finished job
func exitError(policy config.ExitPolicy, err error) error {
	if policy == config.ExitPolicyPropagate {
		return err
	}
	return nil
}
