package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoad_Defaults(t *testing.T) {
	setTestHome(t)
	cwd := t.TempDir()
	prev, _ := os.Getwd()
	if err := os.Chdir(cwd); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "127.0.0.1:7788" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" || cfg.ConfigPrecedence != "latest" || cfg.MaxUploadMB != 200 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	home := setTestHome(t)
	cfgDir := filepath.Join(home, ".config", "rikkaport")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	yamlBody := "listen_addr: 0.0.0.0:9000\nlog_level: debug\nredact_secrets: true\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" || cfg.LogLevel != "debug" || !cfg.RedactSecrets {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.MaxUploadMB != 200 {
		t.Fatalf("untouched default should survive: %+v", cfg)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	home := setTestHome(t)
	cfgDir := filepath.Join(home, ".config", "rikkaport")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RIKKAPORT_LOG_LEVEL", "error")
	t.Setenv("RIKKAPORT_MAX_UPLOAD_MB", "64")
	t.Setenv("RIKKAPORT_CONFIG_PRECEDENCE", "first")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("env should win over yaml, got=%s", cfg.LogLevel)
	}
	if cfg.MaxUploadMB != 64 || cfg.ConfigPrecedence != "first" {
		t.Fatalf("env values not applied: %+v", cfg)
	}
}

func TestLoad_BadNumericEnvKeepsDefault(t *testing.T) {
	setTestHome(t)
	t.Setenv("RIKKAPORT_MAX_UPLOAD_MB", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxUploadMB != 200 {
		t.Fatalf("unparseable env value should be ignored, got=%d", cfg.MaxUploadMB)
	}
}

func TestTemplateFor(t *testing.T) {
	cfg := &Config{CherryTemplate: "/tmp/cherry.zip", RikkaTemplate: "/tmp/rikka.zip"}
	if cfg.TemplateFor("cherry") != "/tmp/cherry.zip" {
		t.Fatal("cherry template mismatch")
	}
	if cfg.TemplateFor("rikka") != "/tmp/rikka.zip" {
		t.Fatal("rikka template mismatch")
	}
	if cfg.TemplateFor("other") != "" {
		t.Fatal("unknown format should map to empty template")
	}
}
