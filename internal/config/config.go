package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"hooklog/internal/eventlog"
	"hooklog/internal/service"
)

// DefaultPIDDir is where service PID files and output logs go when the
// config does not say otherwise.
const DefaultPIDDir = "logs/run"

// Config is the top-level hooklog configuration.
type Config struct {
	Log      eventlog.Config   `yaml:"log,omitempty"`
	Audit    *AuditConfig      `yaml:"audit,omitempty"`
	PIDDir   string            `yaml:"pid_dir,omitempty"`
	Services []service.Service `yaml:"services,omitempty"`
}

// AuditConfig controls the SQLite audit store.
type AuditConfig struct {
	Disabled  bool   `yaml:"disabled"` // default: false (audit enabled)
	DBPath    string `yaml:"db_path,omitempty"`
	Retention string `yaml:"retention,omitempty"` // e.g. "7d", "30d"
}

// EffectivePIDDir returns the PID directory, applying the default.
func (c Config) EffectivePIDDir() string {
	if c.PIDDir == "" {
		return DefaultPIDDir
	}
	return c.PIDDir
}

// FindService returns the service with the given name, or an error
// naming the configured services when absent.
func (c Config) FindService(name string) (service.Service, error) {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc, nil
		}
	}
	names := make([]string, 0, len(c.Services))
	for _, svc := range c.Services {
		names = append(names, svc.Name)
	}
	return service.Service{}, fmt.Errorf("config: unknown service %q (configured: %v)", name, names)
}

// Load searches for the config file in standard locations and parses it.
// Search order: $HOOKLOG_CONFIG → $XDG_CONFIG_HOME/hooklog/config.yaml
// → ~/.config/hooklog/config.yaml.
// Returns zero-value Config if no file is found. Returns error if a file
// exists but contains invalid YAML.
func Load() (Config, error) {
	path, err := findConfigPath()
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return Config{}, nil
	}
	return LoadFrom(path)
}

// LoadFrom parses a config from the given file path.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// findConfigPath returns the path to the first config file found,
// or empty string if none exists.
func findConfigPath() (string, error) {
	// 1. Explicit env var.
	if p := os.Getenv("HOOKLOG_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("config: $HOOKLOG_CONFIG points to %s which does not exist", p)
			}
			return "", fmt.Errorf("config: stat %s: %w", p, err)
		}
		return p, nil
	}

	// 2. XDG_CONFIG_HOME.
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		p := filepath.Join(xdg, "hooklog", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	// 3. Default ~/.config.
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil // Can't determine home, treat as no config.
	}
	p := filepath.Join(home, ".config", "hooklog", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}

	return "", nil
}
