// Package config handles Sanjeevni configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported model backends. Exactly one is active per process.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// Supported database/sql driver names for SQLite.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml", "config.toml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sanjeevni", "config.yaml"))
	}

	paths = append(paths, "/etc/sanjeevni/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Sanjeevni configuration.
type Config struct {
	Listen    ListenConfig            `yaml:"listen" toml:"listen"`
	Provider  ProviderConfig          `yaml:"provider" toml:"provider"`
	Database  DatabaseConfig          `yaml:"database" toml:"database"`
	Agent     AgentConfig             `yaml:"agent" toml:"agent"`
	Identity  IdentityConfig          `yaml:"identity" toml:"identity"`
	Reports   ReportsConfig           `yaml:"reports" toml:"reports"`
	Telemetry TelemetryConfig         `yaml:"telemetry" toml:"telemetry"`
	Pricing   map[string]PricingEntry `yaml:"pricing" toml:"pricing"`
	DataDir   string                  `yaml:"data_dir" toml:"data_dir"`
	LogLevel  string                  `yaml:"log_level" toml:"log_level"`
	LogFormat string                  `yaml:"log_format" toml:"log_format"` // text or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address" toml:"address"`
	Port    int    `yaml:"port" toml:"port"`
	// MaxInflight bounds the number of messages being answered at once.
	MaxInflight int `yaml:"max_inflight" toml:"max_inflight"`
}

// ProviderConfig selects and configures the single active model backend.
type ProviderConfig struct {
	Name      string   `yaml:"name" toml:"name"` // ollama, anthropic, openai, gemini
	Model     string   `yaml:"model" toml:"model"`
	BaseURL   string   `yaml:"base_url" toml:"base_url"`
	APIKey    string   `yaml:"api_key" toml:"api_key"`
	MaxTokens int      `yaml:"max_tokens" toml:"max_tokens"`
	Timeout   Duration `yaml:"timeout" toml:"timeout"` // zero: rely on request context

	// BreakerFailures opens the circuit after this many consecutive
	// provider failures. Zero disables the breaker.
	BreakerFailures int      `yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerCooldown Duration `yaml:"breaker_cooldown" toml:"breaker_cooldown"`
}

// DatabaseConfig defines conversation persistence.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path   string `yaml:"path" toml:"path"`     // default: <data_dir>/conversations.db
	// UsagePath is the token usage database. Default: <data_dir>/usage.db.
	UsagePath string `yaml:"usage_path" toml:"usage_path"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	HistoryWindow int      `yaml:"history_window" toml:"history_window"`
	MaxToolDepth  int      `yaml:"max_tool_depth" toml:"max_tool_depth"`
	ToolTimeout   Duration `yaml:"tool_timeout" toml:"tool_timeout"`
	Language      string   `yaml:"language" toml:"language"`
}

// IdentityConfig feeds the system prompt.
type IdentityConfig struct {
	Name         string   `yaml:"name" toml:"name"`
	Version      string   `yaml:"version" toml:"version"`
	Description  string   `yaml:"description" toml:"description"`
	Purpose      string   `yaml:"purpose" toml:"purpose"`
	Capabilities []string `yaml:"capabilities" toml:"capabilities"`
}

// ReportsConfig defines where generated reports are written.
type ReportsConfig struct {
	OutputDir string `yaml:"output_dir" toml:"output_dir"` // default: <data_dir>/pdfs
}

// TelemetryConfig defines OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"` // OTLP gRPC host:port
	Insecure    bool   `yaml:"insecure" toml:"insecure"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// PricingEntry is the USD price per million tokens for one model.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million" toml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" toml:"output_per_million"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler (used by TOML).
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped and variables already set
// in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from a YAML or TOML file (chosen by extension),
// expanding ${VAR} references from the environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8000
	}
	if c.Listen.MaxInflight <= 0 {
		c.Listen.MaxInflight = 16
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}

	if c.Provider.Name == "" {
		c.Provider.Name = ProviderOllama
	}
	c.Provider.Name = strings.ToLower(c.Provider.Name)
	if c.Provider.Model == "" {
		c.Provider.Model = defaultModels[c.Provider.Name]
	}
	if c.Provider.MaxTokens <= 0 {
		c.Provider.MaxTokens = 4096
	}
	if c.Provider.BreakerFailures > 0 && c.Provider.BreakerCooldown.Duration == 0 {
		c.Provider.BreakerCooldown.Duration = 30 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverCGO
	}

	// Negative values mean "unset"; zero is a meaningful window/depth.
	if c.Agent.HistoryWindow == 0 {
		c.Agent.HistoryWindow = 10
	}
	if c.Agent.MaxToolDepth == 0 {
		c.Agent.MaxToolDepth = 10
	}
	if c.Agent.ToolTimeout.Duration == 0 {
		c.Agent.ToolTimeout.Duration = 30 * time.Second
	}
	if c.Agent.Language == "" {
		c.Agent.Language = "en"
	}

	if c.Identity.Name == "" {
		c.Identity = defaultIdentity()
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "sanjeevni"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4317"
	}

	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

var defaultModels = map[string]string{
	ProviderOllama:    "qwen3:4b",
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderOpenAI:    "gpt-4o",
	ProviderGemini:    "gemini-1.5-pro",
}

func defaultIdentity() IdentityConfig {
	return IdentityConfig{
		Name:        "Sanjeevni AI",
		Version:     "BETA",
		Description: "An advanced assistant for medical checkup",
		Purpose:     "To ask the problems of patients and users and make a report of the problems.",
		Capabilities: []string{
			"asking about the symptoms of the patients, with severity and duration",
			"Do not give any medical advice or diagnosis",
			"Provide information about the symptoms and their possible causes",
			"Generate a report of the problems",
			"Further report and medications will be provided after the report is generated",
			"End the conversation when the user says no problem remains",
			"Ask whether the report is up to the mark",
		},
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.Provider.Name]; !ok {
		return fmt.Errorf("provider.name %q is not supported (valid: ollama, anthropic, openai, gemini)", c.Provider.Name)
	}
	if c.Provider.Name != ProviderOllama && c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required for provider %q", c.Provider.Name)
	}
	switch c.Database.Driver {
	case DriverCGO, DriverPure:
	default:
		return fmt.Errorf("database.driver %q is not supported (valid: sqlite3, sqlite)", c.Database.Driver)
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Agent.MaxToolDepth < 0 {
		return fmt.Errorf("agent.max_tool_depth must not be negative")
	}
	if c.Agent.HistoryWindow < 0 {
		return fmt.Errorf("agent.history_window must not be negative")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q is not supported (valid: text, json)", c.LogFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DatabasePath returns the conversation database location.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "conversations.db")
}

// UsageDatabasePath returns the token usage database location.
func (c *Config) UsageDatabasePath() string {
	if c.Database.UsagePath != "" {
		return c.Database.UsagePath
	}
	return filepath.Join(c.DataDir, "usage.db")
}

// ReportsDir returns the directory generated reports are written to.
func (c *Config) ReportsDir() string {
	if c.Reports.OutputDir != "" {
		return c.Reports.OutputDir
	}
	return filepath.Join(c.DataDir, "pdfs")
}
