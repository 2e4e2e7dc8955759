package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultServer = "http://localhost:8080"

// cliConfig is persisted between invocations.
type cliConfig struct {
	Server string `yaml:"server"`
	Token  string `yaml:"token,omitempty"`
	// Chat is the selected chat id.
	Chat string `yaml:"chat,omitempty"`
	// Draft holds the last prompt that failed to send.
	Draft string `yaml:"draft,omitempty"`
}

func defaultConfigPath() string {
	if p := os.Getenv("QGPT_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".qgpt.yaml"
	}
	return filepath.Join(dir, "qgpt", "config.yaml")
}

// loadConfig reads path, returning defaults when it does not exist.
func loadConfig(path string) (*cliConfig, error) {
	cfg := &cliConfig{Server: defaultServer}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Server == "" {
		cfg.Server = defaultServer
	}
	return cfg, nil
}

// save writes the config readable only by the owner, since it holds the
// session token.
func (c *cliConfig) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
