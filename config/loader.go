package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Load builds the configuration from the environment on top of defaults.
// Unset variables keep their default; set-but-invalid numeric and boolean
// values are an error rather than a silent fallback.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("APP_NAME"); v != "" {
		cfg.AppName = v
	}

	debug, err := envBool("DEBUG", cfg.Debug)
	if err != nil {
		return nil, err
	}
	cfg.Debug = debug

	if v := os.Getenv("API_HOST"); v != "" {
		cfg.APIHost = v
	}

	port, err := envInt("API_PORT", cfg.APIPort)
	if err != nil {
		return nil, err
	}
	cfg.APIPort = port

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	cfg.APIToken = os.Getenv("API_TOKEN")

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")

	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.RoutingConfig = os.Getenv("ROUTING_CONFIG")

	if v := os.Getenv("TOOLS_DISABLED"); v != "" {
		cfg.ToolsDisabled = splitCSV(v)
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EXPORTS_DIR"); v != "" {
		cfg.ExportsDir = v
	}

	return cfg, nil
}

// envBool parses a boolean environment variable. Accepts the strconv forms
// (1/0, t/f, true/false) plus yes/no and on/off.
func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	switch strings.ToLower(v) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}

	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

// envInt parses an integer environment variable.
func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

// splitCSV splits a comma-separated value into trimmed, non-empty entries.
func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
