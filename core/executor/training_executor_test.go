package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finetune-orchestrator/core/logging"
	"finetune-orchestrator/core/models"
	"finetune-orchestrator/training/frameworks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// fakeRunner records commands and plays the role of the trainer by writing files
// into the output directory named in the config it receives
type fakeRunner struct {
	commands []Command
	files    []string
	err      error
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) error {
	f.commands = append(f.commands, cmd)
	if f.err != nil {
		return f.err
	}

	cfgPath := cmd.Args[len(cmd.Args)-1]
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return err
	}
	var cfg struct {
		Arguments struct {
			OutputDir string `yaml:"output_dir"`
		} `yaml:"training_arguments"`
		SaveFolder string `yaml:"save_folder"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	if cfg.SaveFolder != "" {
		return os.WriteFile(cfg.SaveFolder, []byte("gguf"), 0o644)
	}
	for _, name := range f.files {
		path := filepath.Join(cfg.Arguments.OutputDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func newTestService(runner CommandRunner) *TrainingService {
	svc := NewTrainingService(runner, "python3 -m llm_utility.train", "python3 -m llm_utility.quantize", logging.Discard())
	svc.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return svc
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestFineTuneWritesConfigAndCollectsArtifacts(t *testing.T) {
	modelDir := t.TempDir()
	dataset := filepath.Join(modelDir, "d.jsonl")
	writeFile(t, dataset, `{"prompt":"p","completion":"c"}`+"\n")

	runner := &fakeRunner{files: []string{
		"model.safetensors", "config.json", "tokenizer.json", "special_tokens_map.json", "checkpoint-1/trainer_state.json",
	}}
	artifacts, err := newTestService(runner).FineTune(context.Background(), modelDir, dataset)
	require.NoError(t, err)

	outputDir := filepath.Join(modelDir, "finetuned_2024-05-06_07-08-09")
	assert.Equal(t, outputDir, artifacts.OutputDir)
	assert.ElementsMatch(t, []string{
		filepath.Join(outputDir, "model.safetensors"),
		filepath.Join(outputDir, "config.json"),
	}, artifacts.ModelFiles)
	assert.Len(t, artifacts.TokenizerFiles, 2)
	assert.Equal(t, []string{filepath.Join(outputDir, "checkpoint-1")}, artifacts.CheckpointDirs)
	assert.FileExists(t, filepath.Join(outputDir, frameworks.TrainingConfigFile))

	require.Len(t, runner.commands, 1)
	cmd := runner.commands[0]
	assert.Equal(t, "python3", cmd.Name)
	assert.Equal(t, []string{"-m", "llm_utility.train", "--config", filepath.Join(outputDir, frameworks.TrainingConfigFile)}, cmd.Args)
	assert.Equal(t, modelDir, cmd.Dir)
}

func TestFineTuneRejectsInvalidDataset(t *testing.T) {
	modelDir := t.TempDir()
	dataset := filepath.Join(modelDir, "d.jsonl")
	writeFile(t, dataset, `{"prompt":"p"}`)
	runner := &fakeRunner{}

	_, err := newTestService(runner).FineTune(context.Background(), modelDir, dataset)

	assert.True(t, errors.Is(err, frameworks.ErrInvalidDataset))
	assert.Empty(t, runner.commands)
}

func TestFineTuneTrainerFailure(t *testing.T) {
	modelDir := t.TempDir()
	dataset := filepath.Join(modelDir, "d.jsonl")
	writeFile(t, dataset, `{"prompt":"p","completion":"c"}`)

	_, err := newTestService(&fakeRunner{err: errors.New("exit status 1")}).FineTune(context.Background(), modelDir, dataset)
	assert.ErrorContains(t, err, "training failed")
}

func TestFineTuneWithoutWeightsFails(t *testing.T) {
	modelDir := t.TempDir()
	dataset := filepath.Join(modelDir, "d.jsonl")
	writeFile(t, dataset, `{"prompt":"p","completion":"c"}`)

	_, err := newTestService(&fakeRunner{files: []string{"config.json"}}).FineTune(context.Background(), modelDir, dataset)
	assert.ErrorContains(t, err, "no model weights")
}

func TestFineTuneWithoutTrainerCommand(t *testing.T) {
	svc := NewTrainingService(&fakeRunner{}, "  ", "", logging.Discard())

	_, err := svc.FineTune(context.Background(), t.TempDir(), "d.jsonl")
	assert.True(t, errors.Is(err, models.ErrMissingDependency))
}

func TestQuantizeRecordsOutput(t *testing.T) {
	outputDir := t.TempDir()
	runner := &fakeRunner{}
	artifacts := &models.TrainingArtifacts{OutputDir: outputDir}

	require.NoError(t, newTestService(runner).Quantize(context.Background(), artifacts))

	assert.Equal(t, filepath.Join(outputDir, frameworks.QuantizedModelFile), artifacts.QuantizedModel)
	assert.FileExists(t, artifacts.QuantizedModel)
	require.Len(t, runner.commands, 1)
	assert.Equal(t, "llm_utility.quantize", runner.commands[0].Args[1])
}

func TestQuantizeWithoutTrainingOutput(t *testing.T) {
	assert.Error(t, newTestService(&fakeRunner{}).Quantize(context.Background(), nil))
}
