package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the renderflow CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	LogLevel    string `json:"log_level"`
	DBPath      string `json:"db_path"`
	MetricsAddr string `json:"metrics_addr"`
	ServeAddr   string `json:"serve_addr"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		DBPath:   filepath.Join(renderflowDir(), "runs.db"),
	}
}

func renderflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".renderflow"
	}
	return filepath.Join(home, ".renderflow")
}

func settingsPath() string {
	return filepath.Join(renderflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("RENDERFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RENDERFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RENDERFLOW_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("RENDERFLOW_SERVE_ADDR"); v != "" {
		cfg.ServeAddr = v
	}

	return cfg
}
