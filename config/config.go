// Package config loads the client configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds everything the CLI needs to reach the backend and record run
// history.
type Config struct {
	// ServerURL is the base URL of the pipeline backend.
	ServerURL string `yaml:"server_url"`
	// SelectedModel is passed to the backend on run creation.
	SelectedModel string `yaml:"selected_model"`
	// HistoryDB is the path of the local run-history database.
	HistoryDB string `yaml:"history_db"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Load reads and parses a configuration from the given YAML file path, then
// applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault searches standard locations and loads the first config found.
// Search order: ./circuitflow.yaml, ~/.circuitflow/config.yaml. When no file
// exists the defaults (plus environment overrides) are used.
func LoadDefault() (*Config, error) {
	candidates := []string{"circuitflow.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".circuitflow", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8000"
	}
	if cfg.SelectedModel == "" {
		cfg.SelectedModel = "gpt-4"
	}
	if cfg.HistoryDB == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.HistoryDB = filepath.Join(home, ".circuitflow", "history.db")
		} else {
			cfg.HistoryDB = "circuitflow-history.db"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// applyEnv lets CIRCUITFLOW_* variables override file values, which keeps
// secrets and per-shell endpoints out of the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CIRCUITFLOW_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("CIRCUITFLOW_MODEL"); v != "" {
		cfg.SelectedModel = v
	}
	if v := os.Getenv("CIRCUITFLOW_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	if v := os.Getenv("CIRCUITFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
