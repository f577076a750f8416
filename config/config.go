package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ExitPolicy decides how a failed job is reported to the operating system
type ExitPolicy string

const (
	// ExitPolicyLogOnly always exits 0; failures are visible only in the uploaded log
	ExitPolicyLogOnly ExitPolicy = "log-only"
	// ExitPolicyPropagate exits non-zero when the job fails
	ExitPolicyPropagate ExitPolicy = "propagate"
)

// Config holds the application configuration
type Config struct {
	// Job filesystem
	WorkDir  string
	LogFile  string
	LogLevel slog.Level
	StateDir string

	// Object storage
	LogDestination      string
	ArtifactDestination string
	ServiceAccountKey   string

	// Instance metadata
	CloudProvider string
	AWSRegion     string

	// Container image
	BuildContext     string
	Dockerfile       string
	RegistryUsername string
	RegistryPassword string

	// Training
	TrainerCommand  string
	Quantize        bool
	QuantizeCommand string

	// Job state
	DatabaseURL string
	Resume      bool

	// Status server, disabled when empty
	StatusAddr string

	ExitPolicy ExitPolicy
}

// Load loads configuration from environment variables.
// An optional .env file in the working directory is read first.
func Load() *Config {
	_ = godotenv.Load(".env")

	return &Config{
		WorkDir:  getEnv("FT_WORKDIR", "/llm-utility/"),
		LogFile:  getEnv("FT_LOG_FILE", "/llm-utility/logs.txt"),
		LogLevel: parseLogLevel(getEnv("FT_LOG_LEVEL", "INFO")),
		StateDir: getEnv("FT_STATE_DIR", "/var/lib/llm-utility"),

		LogDestination:      getEnv("FT_LOG_DESTINATION", "gs://fine_tuning_llm_testing/logs/"),
		ArtifactDestination: getEnv("FT_ARTIFACT_DESTINATION", ""),
		ServiceAccountKey:   getEnv("FT_SERVICE_ACCOUNT_KEY", "/tmp/service_account_key.json"),

		CloudProvider: strings.ToLower(getEnv("FT_CLOUD_PROVIDER", "gcp")),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),

		BuildContext:     getEnv("FT_BUILD_CONTEXT", "/LLM_Util/llm-utility"),
		Dockerfile:       getEnv("FT_DOCKERFILE", "Dockerfile"),
		RegistryUsername: getEnv("FT_REGISTRY_USERNAME", ""),
		RegistryPassword: getEnv("FT_REGISTRY_PASSWORD", ""),

		TrainerCommand:  getEnv("FT_TRAINER_COMMAND", "python3 -m llm_utility.train"),
		Quantize:        getBool("FT_QUANTIZE", false),
		QuantizeCommand: getEnv("FT_QUANTIZE_COMMAND", "python3 -m llm_utility.quantize"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		Resume:      getBool("FT_RESUME", false),

		StatusAddr: getEnv("FT_STATUS_ADDR", ""),

		ExitPolicy: parseExitPolicy(getEnv("FT_EXIT_POLICY", string(ExitPolicyLogOnly))),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseExitPolicy(s string) ExitPolicy {
	if ExitPolicy(strings.ToLower(s)) == ExitPolicyPropagate {
		return ExitPolicyPropagate
	}
	return ExitPolicyLogOnly
}
