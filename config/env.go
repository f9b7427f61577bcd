package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads environment variables from .env files, in priority
// order: .env.local (highest) -> .env -> system environment (lowest).
func LoadEnvFiles() error {
	for _, file := range []string{".env", ".env.local"} {
		if err := godotenv.Overload(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnvOverlay applies the recognised environment keys from spec §6 on
// top of whatever was parsed from YAML. Environment always wins over the
// YAML value for every GlobalSettings key it sets.
func ApplyEnvOverlay(cfg *Config) {
	if v := os.Getenv("BEDROCK_REGION"); v != "" {
		cfg.Global.BedrockRegion = v
	}
	if v := os.Getenv("DEFAULT_MODEL_ID"); v != "" {
		cfg.Global.DefaultModelID = v
	}
	if v := os.Getenv("MAX_PARALLEL_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Global.MaxParallelAgents = n
		}
	}
	if v := os.Getenv("JOB_MAX_WALL_CLOCK_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Global.JobMaxWallClock = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("AGENT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Global.AgentRetries = n
		}
	}
	if v := os.Getenv("CONFIDENCE_COMPLETE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Global.ConfidenceComplete = f
		}
	}
	if v := os.Getenv("CONFIDENCE_CLARIFY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Global.ConfidenceClarify = f
		}
	}
}
