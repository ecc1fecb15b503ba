package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Ledger.Backend != LedgerMemory {
		t.Fatalf("expected memory ledger, got %q", cfg.Ledger.Backend)
	}
	if got := cfg.Providers["anthropic"].BaseURL; got != "https://api.anthropic.com" {
		t.Fatalf("unexpected anthropic base url %q", got)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, "gateway.yaml", `
server:
  port: "9090"
  request_timeout: 5s
ledger:
  backend: redis
  redis_addr: redis:6379
  retention: 1h
providers:
  openai:
    base_url: http://localhost:1234
    api_key: from-file
    headers:
      OpenAI-Organization: org-1
aliases:
  fast: gpt-4.1-mini
`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("SILICONFLOW_BASE_URL", "http://sf.local")
	t.Setenv("PORT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.RequestTimeout != 5*time.Second {
		t.Fatalf("server block not applied: %+v", cfg.Server)
	}
	if cfg.Ledger.Backend != LedgerRedis || cfg.Ledger.Retention != time.Hour {
		t.Fatalf("ledger block not applied: %+v", cfg.Ledger)
	}

	openai := cfg.Providers["openai"]
	if openai.APIKey != "from-env" {
		t.Fatalf("env should override file api key, got %q", openai.APIKey)
	}
	if openai.BaseURL != "http://localhost:1234" {
		t.Fatalf("file base url lost: %q", openai.BaseURL)
	}
	if openai.Headers["OpenAI-Organization"] != "org-1" {
		t.Fatalf("headers not loaded: %v", openai.Headers)
	}
	if cfg.Providers["siliconflow"].BaseURL != "http://sf.local" {
		t.Fatalf("SILICONFLOW_BASE_URL not applied")
	}
	if cfg.Providers["anthropic"].BaseURL == "" {
		t.Fatalf("provider missing from file should keep its default")
	}
	if cfg.Aliases["fast"] != "gpt-4.1-mini" {
		t.Fatalf("aliases not loaded: %v", cfg.Aliases)
	}

	llmCfg := openai.LLM()
	if llmCfg.APIKey != "from-env" || llmCfg.BaseURL != "http://localhost:1234" {
		t.Fatalf("unexpected llm config %+v", llmCfg)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server:\n  prot: \"80\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "server.port"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad backend", func(c *Config) { c.Ledger.Backend = "disk" }, "ledger.backend"},
		{"redis without addr", func(c *Config) {
			c.Ledger.Backend = LedgerRedis
			c.Ledger.RedisAddr = ""
		}, "redis_addr"},
		{"unknown provider", func(c *Config) { c.Providers["mistral"] = ProviderConfig{BaseURL: "x"} }, "unknown provider"},
		{"empty base url", func(c *Config) { c.Providers["openai"] = ProviderConfig{BaseURL: " "} }, "base_url"},
		{"bad header", func(c *Config) {
			c.Providers["openai"] = ProviderConfig{BaseURL: "x", Headers: map[string]string{"Bad Header": "v"}}
		}, "header"},
		{"empty alias target", func(c *Config) { c.Aliases = map[string]string{"a": ""} }, "target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "ANTHROPIC_API_KEY=sk-ant-test\n")
	t.Setenv("ANTHROPIC_API_KEY", "")
	os.Unsetenv("ANTHROPIC_API_KEY")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("ANTHROPIC_API_KEY"); got != "sk-ant-test" {
		t.Fatalf("expected key from env file, got %q", got)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("explicit missing env file must fail")
	}
}
