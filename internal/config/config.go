// Package config provides application configuration loaded from environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// IdleTimeout is how long an automated session may sit without customer
	// activity before the reaper archives it.
	IdleTimeout  time.Duration
	ReapInterval time.Duration

	// RulesPath points at an optional YAML routing-rules file. Empty means
	// the built-in rules.
	RulesPath string

	Transcript TranscriptConfig
}

// TranscriptConfig controls the NDJSON conversation transcripts.
type TranscriptConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/chat_history.db"),
		IdleTimeout:  getEnvDuration("IDLE_TIMEOUT", 10*time.Minute),
		ReapInterval: getEnvDuration("REAP_INTERVAL", time.Minute),
		RulesPath:    getEnv("ROUTING_RULES_PATH", ""),
		Transcript: TranscriptConfig{
			Enabled:       getEnvBool("TRANSCRIPT_ENABLED", true),
			Dir:           getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			GlobalEnabled: getEnvBool("TRANSCRIPT_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TRANSCRIPT_GLOBAL_PATH", "./data/transcripts/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT must be positive")
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("REAP_INTERVAL must be positive")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty when transcripts are enabled")
	}
	if c.Transcript.GlobalEnabled && c.Transcript.GlobalPath == "" {
		return fmt.Errorf("TRANSCRIPT_GLOBAL_PATH cannot be empty when the global transcript is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// getEnv returns the value of an environment variable or a fallback.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvBool parses a boolean environment variable.
func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// getEnvInt parses an integer environment variable.
func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration parses a duration environment variable such as "90s" or
// "10m".
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
