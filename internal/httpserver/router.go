package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"promptgate/internal/handlers"
	"promptgate/internal/metrics"
	"promptgate/internal/middleware"
)

// Options tune the middleware chain.
type Options struct {
	RequestTimeout time.Duration // non-streaming routes only
	MaxBodyBytes   int64
}

// Handlers groups the route handlers.
type Handlers struct {
	Chat   *handlers.ChatHandler
	Models *handlers.ModelsHandler
	Usage  *handlers.UsageHandler
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers, opts Options) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	r.Route("/v1", func(r chi.Router) {
		// streams have no overall deadline
		r.Post("/chat/stream", h.Chat.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(opts.RequestTimeout))
			r.Get("/models", h.Models.List)
			r.Get("/usage/{model}", h.Usage.Totals)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
