package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// LLM provider selection: "bedrock", "gemini", or "scripted".
	// "scripted" runs the deterministic collaborator only, useful for
	// demos and CI where no model credentials exist.
	LLMProvider string

	AWSRegion      string
	BedrockModelID string

	GeminiAPIKey  string
	GeminiModelID string

	// GenerateTimeout bounds a single collaborator call. A turn never
	// retries; on timeout the validator substitutes the scripted fallback.
	GenerateTimeout time.Duration

	// PhrasingSeed seeds scripted phrasing variant selection. Zero means
	// seed from the clock.
	PhrasingSeed int64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LLMProvider:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "scripted"))),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:   getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		GenerateTimeout: getEnvAsDuration("GENERATE_TIMEOUT", 10*time.Second),
		PhrasingSeed:    getEnvAsInt64("PHRASING_SEED", 0),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
