package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"promptgate/internal/config"
	"promptgate/internal/handlers"
	"promptgate/internal/httpserver"
	"promptgate/internal/llm"
	"promptgate/internal/metrics"
	"promptgate/internal/registry"
	"promptgate/internal/usage"
	"promptgate/pkg/logging"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT and the config file)")
	return cmd
}

// loadConfig reads the .env file first so its keys take part in env overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, err
	}
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func run(cfg config.Config) error {
	// ----- Logger -----
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.String("redis_addr", cfg.Ledger.RedisAddr),
		zap.Int("aliases", len(cfg.Aliases)),
	)

	// ----- Model registry -----
	reg, err := registry.Default(cfg.Aliases)
	if err != nil {
		return fmt.Errorf("build model registry: %w", err)
	}

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Ledger.Backend == config.LedgerRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Ledger.RedisAddr,
		})
		defer redisClient.Close()
	}

	// ----- Usage ledger -----
	ledger := usage.New(usage.Config{
		Backend:   cfg.Ledger.Backend,
		Retention: cfg.Ledger.Retention,
		Prefix:    cfg.Ledger.Prefix,
	}, redisClient)
	defer ledger.Close()

	// Fail fast if Redis is misconfigured
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = ledger.Ping(pingCtx)
	cancelPing()
	if err != nil {
		logger.Error("usage ledger unreachable", zap.String("backend", cfg.Ledger.Backend), zap.Error(err))
		return err
	}
	logger.Info("usage ledger ready",
		zap.String("backend", cfg.Ledger.Backend),
		zap.String("redis_addr", cfg.Ledger.RedisAddr),
	)

	// ----- Provider adapters -----
	adapters, closeAdapters, err := buildAdapters(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAdapters()

	// ----- Handlers -----
	h := httpserver.Handlers{
		Chat:   handlers.NewChatHandler(reg, ledger, adapters...),
		Models: handlers.NewModelsHandler(reg),
		Usage:  handlers.NewUsageHandler(reg, ledger),
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, h, httpserver.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	// ----- HTTP server -----
	// WriteTimeout stays 0: streams are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("version", version),
		zap.Strings("providers", reg.Providers()),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		return err
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// buildAdapters creates one adapter per provider. A provider without an API
// key is still registered; its models fail per request with a credential error.
func buildAdapters(cfg config.Config, logger *zap.Logger) ([]llm.Adapter, func(), error) {
	type closer interface{ Close() error }

	var (
		adapters []llm.Adapter
		closers  []closer
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	constructors := []struct {
		name string
		new  func(llm.Config, *zap.Logger) (llm.Adapter, error)
	}{
		{llm.ProviderOpenAI, func(c llm.Config, l *zap.Logger) (llm.Adapter, error) { return llm.NewOpenAIAdapter(c, l) }},
		{llm.ProviderSiliconFlow, func(c llm.Config, l *zap.Logger) (llm.Adapter, error) { return llm.NewSiliconFlowAdapter(c, l) }},
		{llm.ProviderAnthropic, func(c llm.Config, l *zap.Logger) (llm.Adapter, error) { return llm.NewAnthropicAdapter(c, l) }},
	}

	for _, ctor := range constructors {
		pc := cfg.Providers[ctor.name]
		a, err := ctor.new(pc.LLM(), logger.With(zap.String("provider", ctor.name)))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("configure %s adapter: %w", ctor.name, err)
		}
		if pc.APIKey == "" {
			logger.Warn("provider has no API key; its models will be rejected", zap.String("provider", ctor.name))
		}
		adapters = append(adapters, a)
		if c, ok := a.(closer); ok {
			closers = append(closers, c)
		}
	}
	return adapters, closeAll, nil
}
