// internal/config/config.go
//
// This package handles configuration and the ~/.opex home directory.
// The directory holds config.yaml, the session token, logs and demo state.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// HomeDirName is the directory created under the user's home.
	HomeDirName = ".opex"

	EnvHome        = "OPEX_HOME"
	EnvEnvironment = "OPEX_ENV"
	EnvAPIURL      = "OPEX_API_URL"
	EnvDemo        = "OPEX_DEMO"
	EnvLogLevel    = "OPEX_LOG_LEVEL"

	EnvironmentLocal      = "local"
	EnvironmentProduction = "production"
	EnvironmentPilot      = "pilot"

	defaultTimeout         = 30 * time.Second
	defaultRefreshInterval = 30 * time.Second
	defaultWatchSchedule   = "@every 2m"
	defaultDemoAddr        = "127.0.0.1:0"
)

const defaultConfigYAML = `# opex configuration
version: 1

# Deployment to talk to: local, production or pilot.
environment: production

api:
  # Overrides the environment's origin when set.
  # base_url: http://localhost:9090
  timeout: 30s

# Opt-in demo backend served in-process with sample data.
demo:
  enabled: false
  persist: false

# Request cache lifetimes.
cache:
  initiatives: 2m
  initiative: 5m
  transactions: 2m
  monitoring: 5m
  users: 10m

workflow:
  # Replace the built-in stage catalog.
  # catalog_file: stages.yaml

watch:
  schedule: "@every 2m"

ui:
  refresh_interval: 30s

log:
  level: info
`

// APIConfig controls how the backend is reached.
type APIConfig struct {
	BaseURL string        `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// DemoConfig controls the in-process demo backend.
type DemoConfig struct {
	Enabled bool   `yaml:"enabled"`
	Persist bool   `yaml:"persist"`
	Addr    string `yaml:"addr,omitempty"`
}

// CacheConfig holds per-entity cache lifetimes.
type CacheConfig struct {
	Initiatives  time.Duration `yaml:"initiatives" validate:"gte=0"`
	Initiative   time.Duration `yaml:"initiative" validate:"gte=0"`
	Transactions time.Duration `yaml:"transactions" validate:"gte=0"`
	Monitoring   time.Duration `yaml:"monitoring" validate:"gte=0"`
	Users        time.Duration `yaml:"users" validate:"gte=0"`
}

// WorkflowConfig points at an optional stage catalog override.
type WorkflowConfig struct {
	CatalogFile string `yaml:"catalog_file,omitempty"`
}

// WatchConfig configures `opex watch`.
type WatchConfig struct {
	Schedule string `yaml:"schedule" validate:"required"`
}

// UIConfig configures the terminal UI.
type UIConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gte=0"`
}

// LogConfig configures the structured log.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// FileConfig models ~/.opex/config.yaml.
type FileConfig struct {
	Version     int            `yaml:"version" validate:"gte=1"`
	Environment string         `yaml:"environment" validate:"oneof=local production pilot"`
	API         APIConfig      `yaml:"api"`
	Demo        DemoConfig     `yaml:"demo"`
	Cache       CacheConfig    `yaml:"cache"`
	Workflow    WorkflowConfig `yaml:"workflow"`
	Watch       WatchConfig    `yaml:"watch"`
	UI          UIConfig       `yaml:"ui"`
	Log         LogConfig      `yaml:"log"`
}

// Config holds the runtime configuration.
type Config struct {
	// HomeDir is ~/.opex unless OPEX_HOME or --config says otherwise.
	HomeDir string
	File    FileConfig
}

// Overrides carries command-line flags that win over file and environment.
type Overrides struct {
	Environment string
	Demo        *bool
	LogLevel    string
	BaseURL     string
}

// InitHomeDir creates the home directory structure:
//
//	~/.opex/
//	├── config.yaml
//	├── logs/
//	└── state/
func InitHomeDir(homeDir string) error {
	dirs := []string{
		homeDir,
		filepath.Join(homeDir, "logs"),
		filepath.Join(homeDir, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return ensureConfigFile(filepath.Join(homeDir, "config.yaml"))
}

// ResolveHomeDir picks the home directory: explicit path, then OPEX_HOME,
// then ~/.opex.
func ResolveHomeDir(explicit string) (string, error) {
	if dir := strings.TrimSpace(explicit); dir != "" {
		return filepath.Abs(dir)
	}
	if dir := strings.TrimSpace(os.Getenv(EnvHome)); dir != "" {
		return filepath.Abs(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user home: %w", err)
	}
	return filepath.Join(home, HomeDirName), nil
}

// LoadDotEnv loads a .env file when present. Variables already in the
// environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load initialises the home directory and reads config.yaml, applying
// environment and flag overrides.
func Load(homeDir string, overrides Overrides) (*Config, error) {
	resolved, err := ResolveHomeDir(homeDir)
	if err != nil {
		return nil, err
	}
	if err := InitHomeDir(resolved); err != nil {
		return nil, fmt.Errorf("config: init %s: %w", resolved, err)
	}
	cfg := &Config{HomeDir: resolved, File: defaultFileConfig()}
	if err := cfg.loadFile(overrides); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPath returns the on-disk location for config.yaml.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.HomeDir, "config.yaml")
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.HomeDir, "logs")
}

// StateDir returns the path to the state directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.HomeDir, "state")
}

// LogPath is the structured log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "opex.log")
}

// LogbookPath is the human-readable activity journal.
func (c *Config) LogbookPath() string {
	return filepath.Join(c.LogsDir(), "activity.log")
}

// TokenPath is where the bearer token is stored.
func (c *Config) TokenPath() string {
	return filepath.Join(c.HomeDir, "token")
}

// DemoStatePath is the JSON snapshot of the demo backend.
func (c *Config) DemoStatePath() string {
	return filepath.Join(c.StateDir(), "demo.json")
}

// Environment returns the configured deployment.
func (c *Config) Environment() string {
	return c.File.Environment
}

// DemoEnabled reports whether the demo backend should start.
func (c *Config) DemoEnabled() bool {
	return c.File.Demo.Enabled
}

// SetEnvironment updates the deployment and persists config.yaml.
func (c *Config) SetEnvironment(env string) error {
	c.File.Environment = strings.ToLower(strings.TrimSpace(env))
	return c.save()
}

func (c *Config) loadFile(overrides Overrides) error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultFileConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	parsed.applyDefaults()
	if err := parsed.applyEnv(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	parsed.applyOverrides(overrides)
	parsed.normalize(c.HomeDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.File = parsed
	return nil
}

func defaultFileConfig() FileConfig {
	fc := FileConfig{}
	fc.applyDefaults()
	return fc
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
	if fc.Environment == "" {
		fc.Environment = EnvironmentProduction
	}
	if fc.API.Timeout == 0 {
		fc.API.Timeout = defaultTimeout
	}
	if fc.Demo.Addr == "" {
		fc.Demo.Addr = defaultDemoAddr
	}
	if fc.Cache.Initiatives == 0 {
		fc.Cache.Initiatives = 2 * time.Minute
	}
	if fc.Cache.Initiative == 0 {
		fc.Cache.Initiative = 5 * time.Minute
	}
	if fc.Cache.Transactions == 0 {
		fc.Cache.Transactions = 2 * time.Minute
	}
	if fc.Cache.Monitoring == 0 {
		fc.Cache.Monitoring = 5 * time.Minute
	}
	if fc.Cache.Users == 0 {
		fc.Cache.Users = 10 * time.Minute
	}
	if fc.Watch.Schedule == "" {
		fc.Watch.Schedule = defaultWatchSchedule
	}
	if fc.UI.RefreshInterval == 0 {
		fc.UI.RefreshInterval = defaultRefreshInterval
	}
	if fc.Log.Level == "" {
		fc.Log.Level = "info"
	}
}

func (fc *FileConfig) applyEnv() error {
	if value := strings.TrimSpace(os.Getenv(EnvEnvironment)); value != "" {
		fc.Environment = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvAPIURL)); value != "" {
		fc.API.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvDemo)); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", EnvDemo, err)
		}
		fc.Demo.Enabled = enabled
	}
	if value := strings.TrimSpace(os.Getenv(EnvLogLevel)); value != "" {
		fc.Log.Level = value
	}
	return nil
}

func (fc *FileConfig) applyOverrides(o Overrides) {
	if o.Environment != "" {
		fc.Environment = o.Environment
	}
	if o.Demo != nil {
		fc.Demo.Enabled = *o.Demo
	}
	if o.LogLevel != "" {
		fc.Log.Level = o.LogLevel
	}
	if o.BaseURL != "" {
		fc.API.BaseURL = o.BaseURL
	}
}

func (fc *FileConfig) normalize(base string) {
	fc.Environment = strings.ToLower(strings.TrimSpace(fc.Environment))
	fc.API.BaseURL = strings.TrimRight(strings.TrimSpace(fc.API.BaseURL), "/")
	fc.Log.Level = strings.ToLower(strings.TrimSpace(fc.Log.Level))
	fc.Watch.Schedule = strings.TrimSpace(fc.Watch.Schedule)
	fc.Workflow.CatalogFile = resolvePath(base, fc.Workflow.CatalogFile)
}

var validate = validator.New()

func (fc *FileConfig) validate() error {
	if err := validate.Struct(fc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%s failed %q validation (value %v)", fieldPath(first.Namespace()), first.Tag(), first.Value())
		}
		return err
	}
	return nil
}

// fieldPath trims the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o600)
}

func (c *Config) save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.File.applyDefaults()
	c.File.normalize(c.HomeDir)
	if err := c.File.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.HomeDir, 0o700); err != nil {
		return fmt.Errorf("config: ensure home dir: %w", err)
	}
	data, err := yaml.Marshal(c.File)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ConfigPath(), data, 0o600); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}
