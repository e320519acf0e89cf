package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvHome, EnvEnvironment, EnvAPIURL, EnvDemo, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestLoadWritesDefaultConfig(t *testing.T) {
	clearEnv(t)
	home := filepath.Join(t.TempDir(), ".opex")
	cfg, err := Load(home, Overrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if _, err := os.Stat(cfg.ConfigPath()); err != nil {
		t.Fatalf("expected config.yaml to be created: %v", err)
	}
	for _, dir := range []string{cfg.LogsDir(), cfg.StateDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if cfg.Environment() != EnvironmentProduction {
		t.Fatalf("expected production default, got %q", cfg.Environment())
	}
	if cfg.File.API.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.File.API.Timeout)
	}
	if cfg.File.Cache.Users != 10*time.Minute {
		t.Fatalf("expected users ttl 10m, got %s", cfg.File.Cache.Users)
	}
	if cfg.DemoEnabled() {
		t.Fatalf("demo should be opt-in")
	}
}

func TestLoadParsesYaml(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	configYAML := strings.TrimSpace(`
version: 1
environment: Pilot
api:
  base_url: https://example.test/
  timeout: 5s
demo:
  enabled: true
cache:
  users: 1m
workflow:
  catalog_file: stages.yaml
watch:
  schedule: "@every 30s"
log:
  level: DEBUG
`)
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(configYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(home, Overrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Environment() != EnvironmentPilot {
		t.Fatalf("expected pilot, got %q", cfg.Environment())
	}
	if cfg.File.API.BaseURL != "https://example.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.File.API.BaseURL)
	}
	if cfg.File.API.Timeout != 5*time.Second || cfg.File.Cache.Users != time.Minute {
		t.Fatalf("durations not parsed: %+v", cfg.File)
	}
	if cfg.File.Cache.Initiative != 5*time.Minute {
		t.Fatalf("missing cache keys should keep defaults, got %s", cfg.File.Cache.Initiative)
	}
	if cfg.File.Workflow.CatalogFile != filepath.Join(home, "stages.yaml") {
		t.Fatalf("catalog path not resolved: %s", cfg.File.Workflow.CatalogFile)
	}
	if cfg.File.Log.Level != "debug" {
		t.Fatalf("expected normalized log level, got %q", cfg.File.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("environment: staging\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(home, Overrides{})
	if err == nil {
		t.Fatalf("expected validation error but got none")
	}
	if !strings.Contains(err.Error(), "Environment") {
		t.Fatalf("expected error to name the field, got %v", err)
	}
}

func TestEnvironmentAndFlagsOverrideFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv(EnvEnvironment, "local")
	t.Setenv(EnvAPIURL, "http://127.0.0.1:8080")
	t.Setenv(EnvDemo, "true")
	demo := false
	cfg, err := Load(home, Overrides{Demo: &demo, LogLevel: "warn"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Environment() != EnvironmentLocal {
		t.Fatalf("expected env override, got %q", cfg.Environment())
	}
	if cfg.File.API.BaseURL != "http://127.0.0.1:8080" {
		t.Fatalf("expected api url override, got %q", cfg.File.API.BaseURL)
	}
	if cfg.DemoEnabled() {
		t.Fatalf("flag should win over OPEX_DEMO")
	}
	if cfg.File.Log.Level != "warn" {
		t.Fatalf("expected log level flag, got %q", cfg.File.Log.Level)
	}
}

func TestResolveHomeDirUsesEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)
	got, err := ResolveHomeDir("")
	if err != nil {
		t.Fatalf("ResolveHomeDir: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}
}

func TestLoadDotEnvKeepsExistingVariables(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("OPEX_ENV=pilot\nOPEX_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvLogLevel, "error")
	os.Unsetenv(EnvEnvironment)
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(EnvEnvironment); got != "pilot" {
		t.Fatalf("expected pilot from .env, got %q", got)
	}
	if got := os.Getenv(EnvLogLevel); got != "error" {
		t.Fatalf("existing variable should win, got %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestSetEnvironmentPersists(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	cfg, err := Load(home, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetEnvironment("pilot"); err != nil {
		t.Fatalf("SetEnvironment: %v", err)
	}
	reloaded, err := Load(home, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Environment() != EnvironmentPilot {
		t.Fatalf("expected persisted pilot, got %q", reloaded.Environment())
	}
}
