package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptgate/internal/llm"
	"promptgate/internal/metrics"
	"promptgate/internal/usage"
	"promptgate/pkg/logging"
)

// Resolver maps a public model id onto its provider mapping.
type Resolver interface {
	Resolve(id string) (llm.Model, error)
}

// ChatHandler holds dependencies for the /v1/chat/stream endpoint.
type ChatHandler struct {
	Models   Resolver
	Adapters map[string]llm.Adapter
	Ledger   usage.Ledger
}

// NewChatHandler indexes adapters by provider name. ledger may be nil.
func NewChatHandler(models Resolver, ledger usage.Ledger, adapters ...llm.Adapter) *ChatHandler {
	byName := make(map[string]llm.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &ChatHandler{
		Models:   models,
		Adapters: byName,
		Ledger:   ledger,
	}
}

type streamState string

const (
	stateIdle               streamState = "idle"
	stateValidating         streamState = "validating"
	stateResolving          streamState = "resolving"
	stateStreaming          streamState = "streaming"
	stateCompleted          streamState = "completed"
	stateFailedBeforeStream streamState = "failed_before_stream"
	stateFailedDuringStream streamState = "failed_during_stream"
	stateCancelled          streamState = "cancelled"
)

// dispatch tracks one request through its states.
type dispatch struct {
	logger   *zap.Logger
	state    streamState
	streamID string
	provider string
	start    time.Time
}

func (d *dispatch) to(next streamState, fields ...zap.Field) {
	d.logger.Debug("stream_state",
		append(fields, zap.String("from", string(d.state)), zap.String("to", string(next)))...)
	d.state = next
}

// finish records the final state. Pre-stream failures have no provider label
// when resolution did not get that far.
func (d *dispatch) finish(final streamState, fields ...zap.Field) {
	d.to(final)
	provider := d.provider
	if provider == "" {
		provider = "unknown"
	}
	metrics.StreamsTotal.WithLabelValues(provider, string(final)).Inc()

	fields = append(fields,
		zap.String("outcome", string(final)),
		zap.Duration("total_latency_ms", time.Since(d.start)),
	)
	switch final {
	case stateCompleted, stateCancelled:
		d.logger.Info("chat_stream", fields...)
	default:
		d.logger.Warn("chat_stream", fields...)
	}
}

// Stream handles POST /v1/chat/stream.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamID := uuid.NewString()
	ctx := logging.WithFields(r.Context(), zap.String("stream_id", streamID))

	d := &dispatch{logger: logging.L(ctx), state: stateIdle, streamID: streamID, start: time.Now()}

	// ---- Validating ----
	d.to(stateValidating)

	var req llm.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		d.finish(stateFailedBeforeStream, zap.Error(err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		d.finish(stateFailedBeforeStream, zap.Error(err))
		return
	}

	// ---- Resolving ----
	d.to(stateResolving, zap.String("model_id", req.Config.Model))

	model, err := h.Models.Resolve(req.Config.Model)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		d.finish(stateFailedBeforeStream, zap.Error(err))
		return
	}

	d.provider = model.Provider
	d.logger = d.logger.With(
		zap.String("model_id", model.ID),
		zap.String("provider", model.Provider),
		zap.String("upstream_model", model.UpstreamName),
	)

	adapter, ok := h.Adapters[model.Provider]
	if !ok {
		d.logger.Error("no adapter registered for provider")
		writeError(w, http.StatusInternalServerError, "provider "+model.Provider+" is not configured")
		d.finish(stateFailedBeforeStream)
		return
	}

	// The stream lives until the caller leaves or a write fails.
	ctx, cancel := context.WithCancel(logging.WithLogger(ctx, d.logger))
	defer cancel()

	events, err := adapter.Stream(ctx, llm.StreamRequest{
		Model:     model,
		Messages:  req.Messages,
		Config:    req.Config,
		RequestID: streamID,
	})
	if err != nil {
		status := preStreamStatus(err)
		if status >= http.StatusInternalServerError {
			d.logger.Error("upstream call failed before streaming", zap.Int("status", status), zap.Error(err))
		}
		writeError(w, status, err.Error())
		d.finish(stateFailedBeforeStream, zap.Int("status", status), zap.Error(err))
		return
	}

	// ---- Streaming ----
	d.to(stateStreaming)
	h.pipe(ctx, cancel, w, d, model, events)
}

// pipe forwards events as SSE frames until a terminal event, a closed
// channel or a failed write.
func (h *ChatHandler) pipe(
	ctx context.Context,
	cancel context.CancelFunc,
	w http.ResponseWriter,
	d *dispatch,
	model llm.Model,
	events <-chan llm.Event,
) {
	rc := http.NewResponseController(w)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	hdr.Set("X-Stream-Id", d.streamID)
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	var (
		merged    llm.Usage
		sawUsage  bool
		frames    int
		firstText = true
		final     = stateCancelled
	)

	for ev := range events {
		if _, ok := ev.(llm.ContentEvent); ok && firstText {
			firstText = false
			metrics.TimeToFirstTokenSeconds.WithLabelValues(model.Provider).Observe(time.Since(d.start).Seconds())
		}
		if ue, ok := ev.(llm.UsageEvent); ok {
			merged = merged.Merge(ue.Usage)
			sawUsage = true
		}

		frame, err := encodeFrame(ev)
		if err != nil {
			d.logger.Warn("dropping unencodable event", zap.String("kind", llm.Kind(ev)), zap.Error(err))
			continue
		}

		if _, err := w.Write(frame); err != nil {
			d.logger.Info("caller write failed; cancelling upstream", zap.Error(err))
			cancel()
			final = stateCancelled
			break
		}
		if err := rc.Flush(); err != nil {
			d.logger.Info("caller flush failed; cancelling upstream", zap.Error(err))
			cancel()
			final = stateCancelled
			break
		}

		frames++
		metrics.StreamEventsTotal.WithLabelValues(model.Provider, llm.Kind(ev)).Inc()

		if llm.IsTerminal(ev) {
			if _, isErr := ev.(llm.ErrorEvent); isErr {
				final = stateFailedDuringStream
			} else {
				final = stateCompleted
			}
			break
		}
	}

	// No terminal event after the loop means the caller went away or the
	// adapter stopped on cancellation; nothing more is written. Draining
	// waits for the adapter to release the upstream connection.
	cancel()
	for range events {
	}

	if sawUsage {
		h.recordUsage(ctx, model, merged)
	}

	d.finish(final,
		zap.Int("frames", frames),
		zap.Int("prompt_tokens", merged.PromptTokens),
		zap.Int("completion_tokens", merged.CompletionTokens),
	)
}

func (h *ChatHandler) recordUsage(ctx context.Context, model llm.Model, u llm.Usage) {
	metrics.TokensTotal.WithLabelValues(model.Provider, model.ID, "prompt").Add(float64(u.PromptTokens))
	metrics.TokensTotal.WithLabelValues(model.Provider, model.ID, "completion").Add(float64(u.CompletionTokens))

	if h.Ledger == nil {
		return
	}

	// The request context may already be cancelled; the ledger write is
	// bounded on its own.
	ledgerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	key := usage.Key{Provider: model.Provider, ModelID: model.ID}
	if err := h.Ledger.Record(ledgerCtx, key, u); err != nil {
		logging.L(ctx).Warn("usage_ledger_record_failed", zap.Error(err))
	}
}

// preStreamStatus maps an adapter error to the HTTP status of the
// pre-stream error response.
func preStreamStatus(err error) int {
	var (
		missing  *llm.CredentialMissingError
		rejected *llm.UpstreamRejectedError
	)
	switch {
	case errors.Is(err, llm.ErrInvalidRequest), errors.Is(err, llm.ErrModelNotFound):
		return http.StatusBadRequest
	case errors.As(err, &missing):
		return http.StatusInternalServerError
	case errors.As(err, &rejected):
		if rejected.Status >= 400 && rejected.Status <= 599 {
			return rejected.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
