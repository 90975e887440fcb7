package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveConfig writes a Config to a YAML file.
// It writes to a temporary file first, then renames it over the target path.
func SaveConfig(cfg *Config, path string) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// loadOrDefault loads configPath, or returns a fresh default config if it does not exist.
func loadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return NewDefaultConfig(), nil
		}
		return nil, err
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing config: %w", err)
	}
	return cfg, nil
}

// AddSchedule adds a scheduled test to a config file, creating the file if needed.
func AddSchedule(configPath string, s Schedule) error {
	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}

	for _, existing := range cfg.Schedules {
		if existing.ID == s.ID {
			return fmt.Errorf("schedule with ID '%s' already exists", s.ID)
		}
	}

	cfg.Schedules = append(cfg.Schedules, s)
	applyDefaults(cfg)

	if err := SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// RemoveSchedule removes a scheduled test from the config file by ID.
func RemoveSchedule(configPath string, id string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	kept := make([]Schedule, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(cfg.Schedules) {
		return fmt.Errorf("schedule with ID '%s' not found", id)
	}
	cfg.Schedules = kept

	if err := SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// NewDefaultConfig creates a new Config with sensible defaults.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Store: Store{
			Driver: "bbolt",
			Path:   "./.autotest.db",
		},
		Security: Security{
			AllowedAgents: []string{},
		},
		Schedules: []Schedule{},
	}
	applyDefaults(cfg)
	return cfg
}
