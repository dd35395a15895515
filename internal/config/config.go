// Package config loads tool configuration from a YAML file, an optional
// .env.local, and RIKKAPORT_* environment variables, in increasing
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr       string `yaml:"listen_addr"`
	LogLevel         string `yaml:"log_level"`
	CherryTemplate   string `yaml:"cherry_template"`
	RikkaTemplate    string `yaml:"rikka_template"`
	ConfigPrecedence string `yaml:"config_precedence"`
	RedactSecrets    bool   `yaml:"redact_secrets"`
	MaxUploadMB      int    `yaml:"max_upload_mb"`
}

// Load resolves configuration in order: defaults, ~/.config/rikkaport/config.yaml,
// .env.local (walking up from the working directory), then environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       "127.0.0.1:7788",
		LogLevel:         "info",
		ConfigPrecedence: "latest",
		MaxUploadMB:      200,
	}

	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if v := os.Getenv("RIKKAPORT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("RIKKAPORT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RIKKAPORT_CHERRY_TEMPLATE"); v != "" {
		cfg.CherryTemplate = v
	}
	if v := os.Getenv("RIKKAPORT_RIKKA_TEMPLATE"); v != "" {
		cfg.RikkaTemplate = v
	}
	if v := os.Getenv("RIKKAPORT_CONFIG_PRECEDENCE"); v != "" {
		cfg.ConfigPrecedence = v
	}
	if v := os.Getenv("RIKKAPORT_REDACT_SECRETS"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.RedactSecrets = parsed
		}
	}
	if v := os.Getenv("RIKKAPORT_MAX_UPLOAD_MB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.MaxUploadMB = parsed
		}
	}

	return cfg, nil
}

// TemplateFor returns the configured template archive for a target format,
// or empty when none is configured.
func (c *Config) TemplateFor(format string) string {
	switch format {
	case "cherry":
		return c.CherryTemplate
	case "rikka":
		return c.RikkaTemplate
	default:
		return ""
	}
}

func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(homeDir, ".config", "rikkaport", "config.yaml"))
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// findEnvLocal searches for .env.local from the working directory upward,
// stopping at the home directory or filesystem root.
func findEnvLocal() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	homeDir, _ := os.UserHomeDir()
	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
