package frameworks

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// TrainingConfigFile is written into the output directory and passed to the trainer
	TrainingConfigFile = "training_args.yaml"
	// QuantizeConfigFile is written next to the training config for the quantizer
	QuantizeConfigFile = "quantize_args.yaml"
	// QuantizedModelFile is the quantizer output inside the output directory
	QuantizedModelFile = "model_file.gguf"
)

// TransformersSetup prepares Hugging Face Trainer runs
type TransformersSetup struct{}

// TrainingArguments mirrors the subset of transformers.TrainingArguments the job sets
type TrainingArguments struct {
	OutputDir               string `yaml:"output_dir"`
	PerDeviceTrainBatchSize int    `yaml:"per_device_train_batch_size"`
	NumTrainEpochs          int    `yaml:"num_train_epochs"`
	LoggingDir              string `yaml:"logging_dir"`
	LoggingSteps            int    `yaml:"logging_steps"`
}

// TokenizationConfig describes how prompt and completion are tokenized
type TokenizationConfig struct {
	PromptField     string `yaml:"prompt_field"`
	CompletionField string `yaml:"completion_field"`
	Padding         string `yaml:"padding"`
	Truncation      bool   `yaml:"truncation"`
	// LabelsFrom names the field whose input ids become the labels
	LabelsFrom string `yaml:"labels_from"`
}

// TrainingConfig is the document the trainer command reads
type TrainingConfig struct {
	ModelPath    string             `yaml:"model_path"`
	DatasetPath  string             `yaml:"dataset_path"`
	Arguments    TrainingArguments  `yaml:"training_arguments"`
	Tokenization TokenizationConfig `yaml:"tokenization"`
}

// QuantizeConfig is the document the GPTQ quantizer command reads
type QuantizeConfig struct {
	ModelPath           string `yaml:"model_path"`
	Bits                int    `yaml:"bits"`
	Dataset             string `yaml:"dataset"`
	BlockNameToQuantize string `yaml:"block_name_to_quantize"`
	ModelSeqLen         int    `yaml:"model_seqlen"`
	TorchDtype          string `yaml:"torch_dtype"`
	SaveFolder          string `yaml:"save_folder"`
}

// GenerateTrainingConfig builds the trainer configuration for one fine-tuning run
func (t *TransformersSetup) GenerateTrainingConfig(modelDir, datasetPath, outputDir string) *TrainingConfig {
	return &TrainingConfig{
		ModelPath:   modelDir,
		DatasetPath: datasetPath,
		Arguments: TrainingArguments{
			OutputDir:               outputDir,
			PerDeviceTrainBatchSize: 1,
			NumTrainEpochs:          1,
			LoggingDir:              "./logs",
			LoggingSteps:            1,
		},
		Tokenization: TokenizationConfig{
			PromptField:     "prompt",
			CompletionField: "completion",
			Padding:         "max_length",
			Truncation:      true,
			LabelsFrom:      "completion",
		},
	}
}

// GenerateQuantizeConfig builds the 4-bit GPTQ configuration for a trained model
func (t *TransformersSetup) GenerateQuantizeConfig(modelDir string) *QuantizeConfig {
	return &QuantizeConfig{
		ModelPath:           modelDir,
		Bits:                4,
		Dataset:             "c4",
		BlockNameToQuantize: "model.decoder.layers",
		ModelSeqLen:         2048,
		TorchDtype:          "float16",
		SaveFolder:          filepath.Join(modelDir, QuantizedModelFile),
	}
}

// Environment returns variables set for trainer and quantizer processes
func (t *TransformersSetup) Environment() map[string]string {
	return map[string]string{
		"TOKENIZERS_PARALLELISM": "false",
		"HF_HUB_OFFLINE":         "1",
		"PYTHONUNBUFFERED":       "1",
	}
}

// WriteConfig writes v as YAML to path
func WriteConfig(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
