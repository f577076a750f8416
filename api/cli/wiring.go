package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"finetune-orchestrator/api/rest/routes"
	"finetune-orchestrator/core/models"
	"finetune-orchestrator/core/monitoring"
	"finetune-orchestrator/core/repository"
	"finetune-orchestrator/storage/archive"
	"finetune-orchestrator/storage/objectstore"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gorilla/mux"
)

// objectStore registers a backend for gs and s3. A scheme whose client cannot be
// created gets a stand-in that fails every transfer with the creation error.
func (a *App) objectStore(ctx context.Context, logger *slog.Logger) (*objectstore.Client, func()) {
	client := objectstore.NewClient(archive.NewZipService(logger), logger)
	closeFn := func() {}

	gcs, err := objectstore.NewGCSBackend(ctx, a.cfg.ServiceAccountKey)
	if err != nil {
		logger.Warn("GCS backend unavailable", "error", err)
		client.Register("gs", objectstore.Unavailable(err))
	} else {
		client.Register("gs", gcs)
		closeFn = func() { gcs.Close() }
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.AWSRegion))
	if err != nil {
		logger.Warn("S3 backend unavailable", "error", err)
		client.Register("s3", objectstore.Unavailable(err))
	} else {
		client.Register("s3", objectstore.NewS3Backend(awsCfg))
	}

	return client, closeFn
}

// stateStore opens the Postgres store when DATABASE_URL is set and falls back
// to YAML files under the state directory
func (a *App) stateStore(ctx context.Context, logger *slog.Logger) repository.StateStore {
	if a.cfg.DatabaseURL != "" {
		db, err := repository.NewDB(ctx, a.cfg.DatabaseURL)
		if err == nil {
			if err = db.Migrate(ctx); err == nil {
				logger.Info("Job state stored in Postgres")
				return repository.NewPostgresStore(db)
			}
			db.Close()
		}
		logger.Error("Failed to open job state database, using files", "dir", a.cfg.StateDir, "error", err)
	}
	return repository.NewFileStore(a.cfg.StateDir)
}

func startStatusServer(addr string, tracker *monitoring.JobTracker, state repository.StateStore, logger *slog.Logger) *http.Server {
	r := mux.NewRouter()
	routes.SetupRoutes(r, tracker, state)

	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting status server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed", "error", err)
		}
	}()
	return server
}

// unavailableMetadata fails the metadata step with the error that prevented
// creating the client, so the failure lands in the uploaded log
type unavailableMetadata struct{ err error }

func (u unavailableMetadata) Identity(context.Context) (models.InstanceIdentity, error) {
	return models.InstanceIdentity{}, u.err
}

func (u unavailableMetadata) ReadAll(context.Context) (map[string]string, error) {
	return nil, u.err
}

// unavailableImages fails the build step when no Docker client could be created
type unavailableImages struct{ err error }

func (u unavailableImages) Build(context.Context, string) error { return u.err }

func (u unavailableImages) Push(context.Context, string) error { return u.err }
