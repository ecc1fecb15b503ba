package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"promptgate/internal/metrics"
	"promptgate/internal/sse"
)

const (
	maxRequestSize   = 2 * 1024 * 1024 // 2MB total JSON payload
	maxErrorBodySize = 64 * 1024
)

// decodeFunc converts one "data:" payload into zero or more events.
// A terminal event in the result ends the stream. A returned error marks
// the payload as malformed; it is skipped and the stream continues.
type decodeFunc func(payload []byte) ([]Event, error)

// openStream sends body to url and returns the response once a 2xx status
// arrived. Nothing has been read from the body at that point.
func (c *client) openStream(
	ctx context.Context,
	url string,
	body any,
	headers map[string]string,
	requestID string,
) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.provider, err)
	}
	if len(bodyBytes) > maxRequestSize {
		return nil, fmt.Errorf("%w: request too large (%d bytes, max %d)",
			ErrInvalidRequest, len(bodyBytes), maxRequestSize)
	}

	doOnce := func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", c.provider, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		if requestID != "" {
			httpReq.Header.Set("X-Request-Id", requestID)
		}
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}
		for k, v := range c.cfg.Headers {
			httpReq.Header.Set(k, v)
		}
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.doWithRetry(ctx, doOnce)
	if err != nil {
		c.logger.Error("upstream connect failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

		rejected := &UpstreamRejectedError{
			Provider: c.provider,
			Status:   resp.StatusCode,
			Body:     string(raw),
			Message:  parseErrorMessage(raw),
		}
		c.logger.Error("upstream rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("error_message", rejected.Message),
			zap.String("body", truncate(string(raw), 200)),
		)
		return nil, rejected
	}

	return resp, nil
}

// parseErrorMessage reads error.message, the shape all three providers use.
func parseErrorMessage(raw []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if env.Error.Message != "" {
		return env.Error.Message
	}
	return env.Message
}

// pump decodes resp.Body on its own goroutine and delivers events in order.
// The body is closed on every exit path.
func (c *client) pump(ctx context.Context, resp *http.Response, model Model, decode decodeFunc) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)
		defer resp.Body.Close()

		logger := c.logger.With(zap.String("model", model.ID))
		start := time.Now()
		reader := sse.NewReader(resp.Body, 0)
		events := 0

		send := func(ev Event) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- ev:
				events++
				return true
			}
		}

		for {
			line, err := reader.Next()
			if err != nil {
				if ctx.Err() != nil {
					logger.Info("stream cancelled",
						zap.Int("events", events),
						zap.Error(ctx.Err()),
					)
					return
				}
				if errors.Is(err, io.EOF) {
					logger.Warn("upstream closed stream without end marker",
						zap.Int("events", events),
					)
					send(DoneEvent{})
					return
				}
				logger.Error("upstream stream failed",
					zap.Int("events", events),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err),
				)
				send(ErrorEvent{Message: "upstream stream failed", Details: err.Error()})
				return
			}

			payload, ok := sse.Payload(line)
			if !ok || len(bytes.TrimSpace(payload)) == 0 {
				continue
			}

			decoded, err := decode(payload)
			if err != nil {
				metrics.MalformedFramesTotal.WithLabelValues(c.provider).Inc()
				logger.Debug("skipping malformed frame",
					zap.String("payload", truncate(string(payload), 200)),
					zap.Error(err),
				)
				continue
			}

			for _, ev := range decoded {
				if !send(ev) {
					logger.Info("stream cancelled while sending",
						zap.Int("events", events),
					)
					return
				}
				if IsTerminal(ev) {
					logger.Info("upstream stream finished",
						zap.String("terminal", Kind(ev)),
						zap.Int("events", events),
						zap.Duration("elapsed", time.Since(start)),
					)
					return
				}
			}
		}
	}()

	return out
}
