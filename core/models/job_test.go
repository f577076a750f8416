package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobParametersFromMetadata(t *testing.T) {
	params := JobParametersFromMetadata(map[string]string{
		"model_path":      "gs://b/m.zip",
		"dataset_path":    "gs://b/d.jsonl",
		"model_save_name": "m",
		"docker_image":    "reg/img:tag",
		"fine_tuning_id":  "job1",
		"status":          "ignored",
	})

	assert.Equal(t, JobParameters{
		ModelPath:       "gs://b/m.zip",
		DatasetPath:     "gs://b/d.jsonl",
		ModelSaveName:   "m",
		FineTuningID:    "job1",
		DockerImageName: "reg/img:tag",
	}, params)
	assert.NoError(t, params.Validate())
}

func TestJobParametersValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  JobParameters
		missing []string
	}{
		{"all empty", JobParameters{}, []string{"model_path", "dataset_path", "model_save_name", "fine_tuning_id", "docker_image"}},
		{"whitespace counts as empty", JobParameters{ModelPath: " ", DatasetPath: "d", ModelSaveName: "m", FineTuningID: "j", DockerImageName: "i"}, []string{"model_path"}},
		{"missing image", JobParameters{ModelPath: "p", DatasetPath: "d", ModelSaveName: "m", FineTuningID: "j"}, []string{"docker_image"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.missing, tt.params.MissingFields())
			err := tt.params.Validate()
			assert.True(t, errors.Is(err, ErrInvalidParameters))
		})
	}
}
