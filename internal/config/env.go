// Package config provides environment helpers for go-kinetic commands.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvAPIKey       = "GOOGLE_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvModel        = "KINETIC_MODEL"
	EnvAddr         = "KINETIC_ADDR"
	EnvTransport    = "KINETIC_TRANSPORT"
	EnvAudioBackend = "KINETIC_AUDIO_BACKEND"
	EnvCamera       = "KINETIC_CAMERA"
	EnvScenarios    = "KINETIC_SCENARIOS"
	EnvLogLevel     = "LOG_LEVEL"
)

// Default values.
const (
	DefaultAddr     = ":8090"
	DefaultLogLevel = "info"
)

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment. Missing files are ignored and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// APIKey returns the model API key from GOOGLE_API_KEY, falling back to
// GEMINI_API_KEY. Empty when neither is set.
func APIKey() string {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key
	}
	return os.Getenv(EnvGeminiAPIKey)
}

// Get returns the trimmed value of an env var or the default.
func Get(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

// Model returns the model from KINETIC_MODEL or the default.
func Model(def string) string {
	return Get(EnvModel, def)
}

// Addr returns the HTTP listen address from KINETIC_ADDR.
func Addr() string {
	return Get(EnvAddr, DefaultAddr)
}

// LogLevel returns the log level from LOG_LEVEL.
func LogLevel() string {
	return Get(EnvLogLevel, DefaultLogLevel)
}
