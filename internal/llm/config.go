package llm

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	// required
	BaseURL string

	// APIKey may be empty; Stream then fails with CredentialMissingError.
	APIKey string

	// HeaderTimeout bounds the wait for upstream response headers (default: 60s).
	// Once headers arrive the stream itself has no deadline.
	HeaderTimeout time.Duration
	MaxRetries    int           // retry attempts before streaming (default: 2, negative disables)
	BaseBackoff   time.Duration // initial backoff (default: 100ms)

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Extra headers sent with every upstream request.
	Headers map[string]string

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

// client holds what every adapter shares: the tuned HTTP client, retry
// settings and the provider-scoped logger.
type client struct {
	provider   string
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func newClient(provider string, cfg Config, logger *zap.Logger) (*client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	return &client{
		provider:   provider,
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named(provider),
	}, nil
}

// defaultTransport creates a pooled transport. No overall client timeout is
// set because streams may legitimately run for minutes.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close releases idle upstream connections.
func (c *client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// checkCredential fails fast before any network call.
func (c *client) checkCredential() error {
	if c.cfg.APIKey == "" {
		return &CredentialMissingError{Provider: c.provider}
	}
	return nil
}
