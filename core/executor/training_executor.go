package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"finetune-orchestrator/core/models"
	"finetune-orchestrator/training/frameworks"
)

// OutputDirPrefix prefixes the timestamped directory of every training run
const OutputDirPrefix = "finetuned_"

const outputDirLayout = "2006-01-02_15-04-05"

// TrainingService fine-tunes a local model on a JSONL dataset through an
// external trainer process
type TrainingService struct {
	runner          CommandRunner
	setup           *frameworks.TransformersSetup
	trainerCommand  []string
	quantizeCommand []string
	logger          *slog.Logger
	now             func() time.Time
}

// NewTrainingService creates a training service. Commands are split on whitespace.
func NewTrainingService(runner CommandRunner, trainerCommand, quantizeCommand string, logger *slog.Logger) *TrainingService {
	return &TrainingService{
		runner:          runner,
		setup:           &frameworks.TransformersSetup{},
		trainerCommand:  strings.Fields(trainerCommand),
		quantizeCommand: strings.Fields(quantizeCommand),
		logger:          logger,
		now:             time.Now,
	}
}

// FineTune trains the model in modelDir and returns what the trainer wrote
func (s *TrainingService) FineTune(ctx context.Context, modelDir, datasetPath string) (*models.TrainingArtifacts, error) {
	if len(s.trainerCommand) == 0 {
		return nil, fmt.Errorf("%w: no trainer command configured", models.ErrMissingDependency)
	}

	records, err := frameworks.ValidateDataset(datasetPath)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Dataset validated", "path", datasetPath, "records", records)

	outputDir := filepath.Join(modelDir, OutputDirPrefix+s.now().Format(outputDirLayout))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	s.logger.Info(fmt.Sprintf("After Training model will be saved at %s", outputDir))

	cfg := s.setup.GenerateTrainingConfig(modelDir, datasetPath, outputDir)
	cfgPath := filepath.Join(outputDir, frameworks.TrainingConfigFile)
	if err := frameworks.WriteConfig(cfgPath, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("Training started")
	err = s.runner.Run(ctx, Command{
		Name: s.trainerCommand[0],
		Args: append(append([]string{}, s.trainerCommand[1:]...), "--config", cfgPath),
		Env:  s.setup.Environment(),
		Dir:  modelDir,
	})
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	artifacts, err := CollectArtifacts(outputDir)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Training saved", "output_dir", outputDir,
		"model_files", len(artifacts.ModelFiles), "tokenizer_files", len(artifacts.TokenizerFiles))
	return artifacts, nil
}

// Quantize runs the GPTQ quantizer on a trained model and records the output file
func (s *TrainingService) Quantize(ctx context.Context, artifacts *models.TrainingArtifacts) error {
	if artifacts == nil || artifacts.OutputDir == "" {
		return fmt.Errorf("no training output to quantize")
	}
	if len(s.quantizeCommand) == 0 {
		return fmt.Errorf("%w: no quantize command configured", models.ErrMissingDependency)
	}

	cfg := s.setup.GenerateQuantizeConfig(artifacts.OutputDir)
	cfgPath := filepath.Join(artifacts.OutputDir, frameworks.QuantizeConfigFile)
	if err := frameworks.WriteConfig(cfgPath, cfg); err != nil {
		return err
	}

	s.logger.Info("Quantization started", "bits", cfg.Bits, "dataset", cfg.Dataset)
	err := s.runner.Run(ctx, Command{
		Name: s.quantizeCommand[0],
		Args: append(append([]string{}, s.quantizeCommand[1:]...), "--config", cfgPath),
		Env:  s.setup.Environment(),
		Dir:  artifacts.OutputDir,
	})
	if err != nil {
		return fmt.Errorf("quantization failed: %w", err)
	}

	if _, err := os.Stat(cfg.SaveFolder); err != nil {
		return fmt.Errorf("quantized model not written: %w", err)
	}
	artifacts.QuantizedModel = cfg.SaveFolder
	s.logger.Info("Quantized model saved", "path", cfg.SaveFolder)
	return nil
}

// CollectArtifacts lists model weights, tokenizer files and checkpoints in outputDir.
// A directory without model weights is an error.
func CollectArtifacts(outputDir string) (*models.TrainingArtifacts, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read training output: %w", err)
	}

	artifacts := &models.TrainingArtifacts{OutputDir: outputDir}
	weights := 0
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(outputDir, name)
		switch {
		case entry.IsDir() && strings.HasPrefix(name, "checkpoint-"):
			artifacts.CheckpointDirs = append(artifacts.CheckpointDirs, path)
		case entry.IsDir():
		case isWeightFile(name):
			weights++
			artifacts.ModelFiles = append(artifacts.ModelFiles, path)
		case isModelFile(name):
			artifacts.ModelFiles = append(artifacts.ModelFiles, path)
		case isTokenizerFile(name):
			artifacts.TokenizerFiles = append(artifacts.TokenizerFiles, path)
		case name == frameworks.QuantizedModelFile:
			artifacts.QuantizedModel = path
		}
	}
	sort.Strings(artifacts.CheckpointDirs)

	if weights == 0 {
		return nil, fmt.Errorf("training output %s contains no model weights", outputDir)
	}
	return artifacts, nil
}

func isWeightFile(name string) bool {
	if strings.HasPrefix(name, "training_args") {
		return false
	}
	return strings.HasSuffix(name, ".safetensors") || strings.HasSuffix(name, ".bin")
}

func isModelFile(name string) bool {
	switch name {
	case "config.json", "generation_config.json":
		return true
	}
	return strings.HasSuffix(name, ".safetensors.index.json") || strings.HasSuffix(name, ".bin.index.json")
}

func isTokenizerFile(name string) bool {
	switch name {
	case "tokenizer.json", "tokenizer_config.json", "tokenizer.model", "special_tokens_map.json",
		"added_tokens.json", "merges.txt", "vocab.json", "vocab.txt":
		return true
	}
	return false
}
