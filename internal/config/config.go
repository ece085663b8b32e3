package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the root configuration for modbot.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Oracle    OracleConfig              `json:"oracle"`
	Providers map[string]ProviderConfig `json:"providers"`
	Tools     ToolsConfig               `json:"tools"`
	Audit     AuditConfig               `json:"audit"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel           string            `json:"logLevel"`
	LogFile            string            `json:"logFile,omitempty"` // optional log file path
	MaxIterations      int               `json:"maxIterations"`
	RateLimitPerMinute int               `json:"rateLimitPerMinute,omitempty"` // oracle calls; 0 = unlimited
	SystemPrompt       string            `json:"systemPrompt,omitempty"`
	UserID             string            `json:"userId,omitempty"`
	Language           string            `json:"language"`
	Timezone           string            `json:"timezone"`
	Units              map[string]string `json:"units,omitempty"`
}

// OracleConfig selects the language model and its sampling settings.
type OracleConfig struct {
	Provider       string  `json:"provider"` // "ollama" | "openai"
	Model          string  `json:"model,omitempty"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"maxTokens"`
	TimeoutSeconds int     `json:"timeoutSeconds"`
}

type ProviderConfig struct {
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

type ToolsConfig struct {
	Dir             string            `json:"dir"`
	Watch           bool              `json:"watch"`
	WatchDebounceMs int               `json:"watchDebounceMs,omitempty"`
	Enabled         []string          `json:"enabled,omitempty"` // empty = all loaded tools
	Denied          []string          `json:"denied,omitempty"`
	TimeoutSeconds  int               `json:"timeoutSeconds,omitempty"` // per invocation; 0 = none
	Command         CommandToolConfig `json:"command"`
}

type CommandToolConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
	MaxOutputBytes int `json:"maxOutputBytes"`
}

// AuditConfig configures the invocation audit log.
type AuditConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Listen   string `json:"listen"`
	Endpoint string `json:"endpoint"`
}

// Provider returns the named provider settings. An empty APIKey falls back
// to the <NAME>_API_KEY environment variable, so keys never need to be
// written into the config file.
func (c *Config) Provider(name string) ProviderConfig {
	p := c.Providers[name]
	if p.APIKey == "" {
		p.APIKey = os.Getenv(strings.ToUpper(name) + "_API_KEY")
	}
	return p
}

// KnownProviders lists the oracle backends the factory can build.
var KnownProviders = []string{"ollama", "openai"}

// DefaultConfigDir returns the default config directory (~/.modbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".modbot"
	}
	return filepath.Join(home, ".modbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// LoadDotEnv loads KEY=VALUE pairs from the .env files that exist among
// paths. Variables already set in the environment win. It returns the files
// that were read.
func LoadDotEnv(paths ...string) ([]string, error) {
	var found []string
	for _, p := range paths {
		p = ExpandPath(p)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	if err := godotenv.Load(found...); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return found, nil
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Defaults
// otherwise. Parse and validation errors are still returned.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		cfg := Defaults()
		cfg.expandPaths()
		return cfg, Validate(cfg)
	}
	return Load(path)
}

func (c *Config) expandPaths() {
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.Tools.Dir = ExpandPath(c.Tools.Dir)
	c.Audit.DBPath = ExpandPath(c.Audit.DBPath)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxIterations < 1 || cfg.General.MaxIterations > 200 {
		errs = append(errs, "general.maxIterations must be between 1 and 200")
	}
	if cfg.General.RateLimitPerMinute < 0 {
		errs = append(errs, "general.rateLimitPerMinute must be >= 0")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Oracle.Temperature < 0 || cfg.Oracle.Temperature > 2 {
		errs = append(errs, "oracle.temperature must be between 0 and 2")
	}
	if cfg.Oracle.MaxTokens < 1 || cfg.Oracle.MaxTokens > 4000 {
		errs = append(errs, "oracle.maxTokens must be between 1 and 4000")
	}
	if cfg.Oracle.TimeoutSeconds < 1 {
		errs = append(errs, "oracle.timeoutSeconds must be >= 1")
	}
	known := false
	for _, p := range KnownProviders {
		if cfg.Oracle.Provider == p {
			known = true
		}
	}
	if !known {
		errs = append(errs, fmt.Sprintf("oracle.provider must be one of: %s", strings.Join(KnownProviders, ", ")))
	}
	if cfg.Oracle.Provider == "openai" && cfg.Provider("openai").APIKey == "" {
		errs = append(errs, "providers.openai.apiKey (or OPENAI_API_KEY) is required when oracle.provider is openai")
	}

	if cfg.Tools.Dir == "" {
		errs = append(errs, "tools.dir is required")
	}
	if cfg.Tools.TimeoutSeconds < 0 {
		errs = append(errs, "tools.timeoutSeconds must be >= 0")
	}
	if cfg.Tools.Command.TimeoutSeconds < 1 {
		errs = append(errs, "tools.command.timeoutSeconds must be >= 1")
	}
	if cfg.Tools.WatchDebounceMs < 0 {
		errs = append(errs, "tools.watchDebounceMs must be >= 0")
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}
	if cfg.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retentionDays must be >= 0")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
