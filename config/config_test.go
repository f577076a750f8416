package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"FT_WORKDIR", "FT_LOG_FILE", "FT_LOG_DESTINATION", "FT_BUILD_CONTEXT",
		"FT_CLOUD_PROVIDER", "FT_RESUME", "FT_EXIT_POLICY", "FT_QUANTIZE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "/llm-utility/", cfg.WorkDir)
	assert.Equal(t, "/llm-utility/logs.txt", cfg.LogFile)
	assert.Equal(t, "gs://fine_tuning_llm_testing/logs/", cfg.LogDestination)
	assert.Equal(t, "/LLM_Util/llm-utility", cfg.BuildContext)
	assert.Equal(t, "Dockerfile", cfg.Dockerfile)
	assert.Equal(t, "gcp", cfg.CloudProvider)
	assert.Equal(t, ExitPolicyLogOnly, cfg.ExitPolicy)
	assert.False(t, cfg.Resume)
	assert.False(t, cfg.Quantize)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FT_WORKDIR", "/data/work/")
	t.Setenv("FT_CLOUD_PROVIDER", "AWS")
	t.Setenv("FT_RESUME", "true")
	t.Setenv("FT_EXIT_POLICY", "Propagate")
	t.Setenv("FT_LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, "/data/work/", cfg.WorkDir)
	assert.Equal(t, "aws", cfg.CloudProvider)
	assert.True(t, cfg.Resume)
	assert.Equal(t, ExitPolicyPropagate, cfg.ExitPolicy)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestParseExitPolicyUnknownFallsBack(t *testing.T) {
	assert.Equal(t, ExitPolicyLogOnly, parseExitPolicy("crash"))
}
