package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Histogram: gateway HTTP latency in seconds. Streams are long-lived, so
	// the upper buckets reach into minutes.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"path", "method", "status_code"},
	)

	// Counter: finished chat streams by provider and final state.
	StreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_streams_total",
			Help: "Chat streams by provider and outcome (completed, failed_before_stream, failed_during_stream, cancelled).",
		},
		[]string{"provider", "outcome"},
	)

	// Counter: unified events written to callers.
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_stream_events_total",
			Help: "Unified stream events forwarded to callers.",
		},
		[]string{"provider", "kind"},
	)

	// Histogram: time from request start to the first content fragment.
	TimeToFirstTokenSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_time_to_first_token_seconds",
			Help:    "Latency until the first content event of a stream.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// Counter: upstream frames that failed to decode and were skipped.
	MalformedFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_malformed_frames_total",
			Help: "Upstream stream frames skipped because they could not be decoded.",
		},
		[]string{"provider"},
	)

	// Counter: upstream connection retries before streaming started.
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Upstream request retries issued before any stream data was read.",
		},
		[]string{"provider"},
	)

	// Counter: tokens reported by upstreams, recorded once per stream.
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_tokens_total",
			Help: "Tokens reported by upstream providers.",
		},
		[]string{"provider", "model", "direction"},
	)

	// Counter: usage ledger operations.
	LedgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_ledger_ops_total",
			Help: "Usage ledger operations by operation and result.",
		},
		[]string{"op", "result"},
	)
)

var registerOnce sync.Once

// Register is called once in main() to register metrics.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			GatewayLatencySeconds,
			StreamsTotal,
			StreamEventsTotal,
			TimeToFirstTokenSeconds,
			MalformedFramesTotal,
			UpstreamRetriesTotal,
			TokensTotal,
			LedgerOpsTotal,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		// route pattern keeps /v1/usage/{model} to one series
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		GatewayLatencySeconds.
			WithLabelValues(path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Flush lets streaming handlers push frames through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
