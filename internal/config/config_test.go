package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeFile(t, t.TempDir(), "test.yaml", "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "listen:\n  port: 8080\n")
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml",
		"provider:\n  name: anthropic\n  api_key: ${SANJEEVNI_TEST_KEY}\n")
	t.Setenv("SANJEEVNI_TEST_KEY", "secret123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Provider.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.Provider.APIKey, "secret123")
	}
	if cfg.Provider.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q, want anthropic default", cfg.Provider.Model)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
data_dir = "/var/lib/sanjeevni"

[listen]
port = 9100

[agent]
history_window = 4
max_tool_depth = 3
tool_timeout = "5s"

[database]
driver = "sqlite"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen.Port != 9100 {
		t.Errorf("Listen.Port = %d, want 9100", cfg.Listen.Port)
	}
	if cfg.Agent.HistoryWindow != 4 {
		t.Errorf("HistoryWindow = %d, want 4", cfg.Agent.HistoryWindow)
	}
	if cfg.Agent.MaxToolDepth != 3 {
		t.Errorf("MaxToolDepth = %d, want 3", cfg.Agent.MaxToolDepth)
	}
	if cfg.Agent.ToolTimeout.Duration != 5*time.Second {
		t.Errorf("ToolTimeout = %v, want 5s", cfg.Agent.ToolTimeout.Duration)
	}
	if cfg.Database.Driver != DriverPure {
		t.Errorf("Driver = %q, want %q", cfg.Database.Driver, DriverPure)
	}
	if got, want := cfg.DatabasePath(), filepath.Join("/var/lib/sanjeevni", "conversations.db"); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
}

func TestLoad_Durations(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml",
		"provider:\n  timeout: 2m\n  breaker_failures: 3\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Provider.Timeout.Duration != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", cfg.Provider.Timeout.Duration)
	}
	if cfg.Provider.BreakerCooldown.Duration != 30*time.Second {
		t.Errorf("BreakerCooldown = %v, want 30s default", cfg.Provider.BreakerCooldown.Duration)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "agent:\n  tool_timeout: soon\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load with invalid duration should error")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"provider", "provider:\n  name: bard\n", "provider.name"},
		{"api key", "provider:\n  name: openai\n", "api_key"},
		{"driver", "database:\n  driver: postgres\n", "database.driver"},
		{"port", "listen:\n  port: 70000\n", "listen.port"},
		{"depth", "agent:\n  max_tool_depth: -1\n", "max_tool_depth"},
		{"log level", "log_level: loud\n", "log level"},
		{"log format", "log_format: xml\n", "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Listen.Port != 8000 {
		t.Errorf("Listen.Port = %d, want 8000", cfg.Listen.Port)
	}
	if cfg.Agent.HistoryWindow != 10 {
		t.Errorf("HistoryWindow = %d, want 10", cfg.Agent.HistoryWindow)
	}
	if cfg.Agent.MaxToolDepth != 10 {
		t.Errorf("MaxToolDepth = %d, want 10", cfg.Agent.MaxToolDepth)
	}
	if cfg.Provider.Name != ProviderOllama {
		t.Errorf("Provider.Name = %q, want %q", cfg.Provider.Name, ProviderOllama)
	}
	if cfg.Identity.Name != "Sanjeevni AI" {
		t.Errorf("Identity.Name = %q, want Sanjeevni AI", cfg.Identity.Name)
	}
	if got, want := cfg.ReportsDir(), filepath.Join("data", "pdfs"); got != want {
		t.Errorf("ReportsDir() = %q, want %q", got, want)
	}
	if got, want := cfg.UsageDatabasePath(), filepath.Join("data", "usage.db"); got != want {
		t.Errorf("UsageDatabasePath() = %q, want %q", got, want)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "SANJEEVNI_DOTENV_A=from-file\nSANJEEVNI_DOTENV_B=from-file\n")
	t.Setenv("SANJEEVNI_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("SANJEEVNI_DOTENV_A") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SANJEEVNI_DOTENV_A"); got != "from-file" {
		t.Errorf("A = %q, want from-file", got)
	}
	if got := os.Getenv("SANJEEVNI_DOTENV_B"); got != "from-env" {
		t.Errorf("B = %q, want from-env (environment wins)", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{" trace ", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger_TraceName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(t.Context(), LevelTrace, "wire payload")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("log output = %q, want level=TRACE", buf.String())
	}
}
