// Package config provides configuration loading and management for ATLAS.
// Configuration comes from the environment; the fallback caps deliberately
// do not appear here because they are spec constants, not tunables.
package config

import (
	"fmt"
	"strings"
)

// Config represents the complete ATLAS configuration.
type Config struct {
	// AppName is used in banners and the version endpoint. Display only.
	AppName string

	// Debug lowers the log level to debug and enables verbose errors.
	Debug bool

	// APIHost and APIPort are the HTTP listen address.
	APIHost string
	APIPort int

	// DatabaseURL selects the receipts store backend by prefix:
	// postgres:// for PostgreSQL, anything else is treated as SQLite
	// (sqlite://path or a bare path).
	DatabaseURL string

	// APIToken protects /v1/* routes when set. Empty disables auth (dev mode).
	APIToken string

	// CORSOrigins is the list of allowed browser origins.
	CORSOrigins []string

	// Provider credentials and endpoints (BYOK).
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GroqAPIKey      string
	OllamaBaseURL   string

	// NATSURL enables receipt event publishing when set. Empty disables it.
	NATSURL string

	// RoutingConfig is an optional YAML file overriding the default model
	// chains. Empty means built-in defaults only.
	RoutingConfig string

	// ToolsDisabled holds glob patterns of tool names excluded from
	// registration (e.g. "WORKFLOW_*").
	ToolsDisabled []string

	// Paths for local data and exports.
	DataDir    string
	ExportsDir string
}

// DefaultConfig returns a Config with sensible defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		AppName:       "ATLAS",
		Debug:         false,
		APIHost:       "0.0.0.0",
		APIPort:       8000,
		DatabaseURL:   "sqlite://./atlas.db",
		CORSOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		OllamaBaseURL: "http://localhost:11434",
		DataDir:       "./data",
		ExportsDir:    "./exports",
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("api port out of range: %d", c.APIPort)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.OllamaBaseURL == "" {
		return fmt.Errorf("ollama base url is required")
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// IsPostgres reports whether DatabaseURL names a PostgreSQL backend.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// SQLitePath extracts the filesystem path from a SQLite database URL.
// Accepts sqlite://path, sqlite:///path, and bare paths.
func (c *Config) SQLitePath() string {
	url := c.DatabaseURL
	for _, prefix := range []string{"sqlite:///", "sqlite://", "sqlite:"} {
		if strings.HasPrefix(url, prefix) {
			rest := strings.TrimPrefix(url, prefix)
			if prefix == "sqlite:///" {
				// Triple slash marks an absolute path.
				return "/" + rest
			}
			return rest
		}
	}
	return url
}

// AuthEnabled reports whether /v1/* routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.APIToken != ""
}
