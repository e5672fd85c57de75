// Package config provides configuration for the control plane.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the control-plane configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Agent host
	AgentURL string

	// Archive database; empty disables archiving
	DatabaseURL string

	// Target policy; empty uses the built-in policy
	PolicyPath string

	// Timeouts
	StreamTimeout time.Duration
	PushTimeout   time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:      getEnvInt("HTTP_PORT", 8080),
		AgentURL:      getEnv("AGENT_URL", "http://localhost:7530"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		PolicyPath:    getEnv("POLICY_PATH", ""),
		StreamTimeout: time.Duration(getEnvInt("STREAM_TIMEOUT_MS", 7200000)) * time.Millisecond,
		PushTimeout:   time.Duration(getEnvInt("PUSH_TIMEOUT_MS", 10000)) * time.Millisecond,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
