// Package config loads runtime configuration from a YAML file with
// environment-variable overrides, and can watch the file for changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings of the synchronization core.
type Config struct {
	// APIBaseURL is the remote task service base URL.
	APIBaseURL string
	// StateDSN selects the durable state backend (file, memory, sqlite,
	// postgres). Empty keeps state in memory only.
	StateDSN string
	// RequestTimeout bounds each CLI-initiated operation.
	RequestTimeout time.Duration
	// SimulatedLatency delays every remote call; zero disables it.
	SimulatedLatency time.Duration
	Debug            bool
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		APIBaseURL:     "http://127.0.0.1:8000",
		RequestTimeout: 15 * time.Second,
	}
}

// fileConfig is the YAML shape. Durations are strings in time.ParseDuration
// syntax.
type fileConfig struct {
	APIBaseURL       string `yaml:"api_base_url"`
	StateDSN         string `yaml:"state_dsn"`
	RequestTimeout   string `yaml:"request_timeout"`
	SimulatedLatency string `yaml:"simulated_latency"`
	Debug            *bool  `yaml:"debug"`
}

// Load reads the file at path on top of the defaults. An absent file is not
// an error; it yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if strings.TrimSpace(raw.APIBaseURL) != "" {
		cfg.APIBaseURL = strings.TrimSpace(raw.APIBaseURL)
	}
	if strings.TrimSpace(raw.StateDSN) != "" {
		cfg.StateDSN = strings.TrimSpace(raw.StateDSN)
	}
	if d, err := parseDuration(raw.RequestTimeout); err != nil {
		return cfg, fmt.Errorf("parse %s: request_timeout: %w", path, err)
	} else if d > 0 {
		cfg.RequestTimeout = d
	}
	if d, err := parseDuration(raw.SimulatedLatency); err != nil {
		return cfg, fmt.Errorf("parse %s: simulated_latency: %w", path, err)
	} else if d > 0 {
		cfg.SimulatedLatency = d
	}
	if raw.Debug != nil {
		cfg.Debug = *raw.Debug
	}
	return cfg, nil
}

// ApplyEnv overlays TODOSYNC_* environment variables on cfg. Invalid values
// are ignored in favor of the existing setting.
func ApplyEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv("TODOSYNC_API_URL")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TODOSYNC_STATE_DSN")); v != "" {
		cfg.StateDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("TODOSYNC_REQUEST_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RequestTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("TODOSYNC_SIMULATED_LATENCY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.SimulatedLatency = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("TODOSYNC_DEBUG")); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	return cfg
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}
