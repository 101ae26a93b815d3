// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	BackendURL  string
	LiveKitURL  string // fallback when the token grant carries no server URL
	FrontendURL string
	DBPath      string
	RoomPrefix  string

	// GatewayTimeout bounds a single REST round trip to the backend.
	GatewayTimeout time.Duration

	// AgentIDPrefixes and AgentIDMarker drive the heuristic that decides
	// whether a transcript segment came from the agent.
	AgentIDPrefixes []string
	AgentIDMarker   string

	CallLogEnabled bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		BackendURL:      getEnv("BACKEND_URL", "http://localhost:8000"),
		LiveKitURL:      getEnv("LIVEKIT_URL", "ws://localhost:7880"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/voicedesk.db"),
		RoomPrefix:      getEnv("ROOM_PREFIX", "voice-ai-room"),
		GatewayTimeout:  30 * time.Second,
		AgentIDPrefixes: getEnvList("AGENT_ID_PREFIXES", []string{"agent", "assistant", "livekit"}),
		AgentIDMarker:   getEnv("AGENT_ID_MARKER", "agent"),
		CallLogEnabled:  getEnvBool("CALL_LOG_ENABLED", true),
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
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if c.RoomPrefix == "" {
		return fmt.Errorf("ROOM_PREFIX cannot be empty")
	}
	if c.CallLogEnabled && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when call logging is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

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

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
