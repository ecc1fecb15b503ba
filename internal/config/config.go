// Package config loads gateway settings from an optional YAML file,
// environment variables and an optional .env file. Environment wins over
// the file; the result is read-only after startup.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"promptgate/internal/llm"
)

const (
	LedgerMemory = "memory"
	LedgerRedis  = "redis"
)

// Config is the full gateway configuration.
type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	Server    ServerConfig              `yaml:"server"`
	Ledger    LedgerConfig              `yaml:"ledger"`
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Aliases map an extra public model id onto a built-in one.
	Aliases map[string]string `yaml:"aliases"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type LedgerConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	Prefix    string        `yaml:"prefix"`
	Retention time.Duration `yaml:"retention"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	Headers       map[string]string `yaml:"headers"`
	MaxRetries    int               `yaml:"max_retries"`
	HeaderTimeout time.Duration     `yaml:"header_timeout"`
}

// LLM converts the provider block into adapter settings.
func (p ProviderConfig) LLM() llm.Config {
	return llm.Config{
		BaseURL:       p.BaseURL,
		APIKey:        p.APIKey,
		Headers:       p.Headers,
		MaxRetries:    p.MaxRetries,
		HeaderTimeout: p.HeaderTimeout,
	}
}

var defaultBaseURLs = map[string]string{
	llm.ProviderOpenAI:      "https://api.openai.com",
	llm.ProviderSiliconFlow: "https://api.siliconflow.cn",
	llm.ProviderAnthropic:   "https://api.anthropic.com",
}

// Default returns the configuration used when no file is given.
func Default() Config {
	providers := make(map[string]ProviderConfig, len(defaultBaseURLs))
	for name, url := range defaultBaseURLs {
		providers[name] = ProviderConfig{BaseURL: url}
	}
	return Config{
		Env:      "production",
		LogLevel: "info",
		Server: ServerConfig{
			Port:            "8080",
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Ledger: LedgerConfig{
			Backend:   LedgerMemory,
			RedisAddr: "127.0.0.1:6379",
			Prefix:    "promptgate",
			Retention: 24 * time.Hour,
		},
		Providers: providers,
	}
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. An empty path tries ./.env and
// ignores its absence; an explicit path must exist.
func LoadEnvFile(path string) error {
	if path == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		f, err := os.Open(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	getenv := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := getenv("ENV"); ok {
		c.Env = v
	}
	if v, ok := getenv("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := getenv("PORT"); ok {
		c.Server.Port = v
	}
	if v, ok := getenv("LEDGER_BACKEND"); ok {
		c.Ledger.Backend = v
	}
	if v, ok := getenv("REDIS_ADDR"); ok {
		c.Ledger.RedisAddr = v
	}
	if v, ok := getenv("LEDGER_RETENTION"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LEDGER_RETENTION: %w", err)
		}
		c.Ledger.Retention = d
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name := range defaultBaseURLs {
		prefix := strings.ToUpper(name)
		p := c.Providers[name]
		if p.BaseURL == "" {
			p.BaseURL = defaultBaseURLs[name]
		}
		if v, ok := getenv(prefix + "_API_KEY"); ok {
			p.APIKey = v
		}
		if v, ok := getenv(prefix + "_BASE_URL"); ok {
			p.BaseURL = v
		}
		if v, ok := getenv(prefix + "_MAX_RETRIES"); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s_MAX_RETRIES: %w", prefix, err)
			}
			p.MaxRetries = n
		}
		c.Providers[name] = p
	}
	return nil
}

// Validate performs sanity checks on the configuration. Missing API keys are
// not an error here: the affected models fail per request instead.
func (c Config) Validate() error {
	if c.LogLevel != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}

	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %q", c.Server.Port)
	}

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerRedis:
		if strings.TrimSpace(c.Ledger.RedisAddr) == "" {
			return errors.New("ledger.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be %q or %q, got %q", LedgerMemory, LedgerRedis, c.Ledger.Backend)
	}

	for name, p := range c.Providers {
		if _, known := defaultBaseURLs[name]; !known {
			return fmt.Errorf("provider %s: unknown provider", name)
		}
		if strings.TrimSpace(p.BaseURL) == "" {
			return fmt.Errorf("provider %s: base_url must be provided", name)
		}
		for header := range p.Headers {
			if !isHTTPHeaderName(header) {
				return fmt.Errorf("provider %s: header %q is not a valid HTTP header name", name, header)
			}
		}
	}

	for alias, target := range c.Aliases {
		if strings.TrimSpace(alias) == "" {
			return errors.New("alias name must not be empty")
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("alias %q target must not be empty", alias)
		}
	}
	return nil
}

func isHTTPHeaderName(header string) bool {
	if header == "" {
		return false
	}
	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
