package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

var gpt41 = Model{
	ID:           "gpt-4.1",
	Provider:     ProviderOpenAI,
	UpstreamName: "gpt-4.1",
}

func userRequest(model Model, text string) StreamRequest {
	return StreamRequest{
		Model:    model,
		Messages: []Message{{Role: RoleUser, Content: text}},
		Config:   GenerationConfig{Model: model.ID},
	}
}

// collect drains ch and fails the test if it is not closed in time.
func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close; got %#v so far", out)
		}
	}
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Errorf("response writer does not support flushing")
			return
		}
		for _, f := range frames {
			_, _ = io.WriteString(w, f)
			flusher.Flush()
		}
	}))
}

func newOpenAI(t *testing.T, cfg Config) *OpenAIAdapter {
	t.Helper()
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	a, err := NewOpenAIAdapter(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAIAdapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewAdapterRequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIAdapter(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}

func TestOpenAIStreamContentAndDone(t *testing.T) {
	t.Parallel()

	var gotReq chatCompletionRequest
	var gotAuth, gotRequestID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}],\"usage\":null}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}],\"usage\":null}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := newOpenAI(t, Config{BaseURL: srv.URL, APIKey: "stream-key"})

	req := userRequest(gpt41, "Hi")
	req.RequestID = "req-123"

	stream, err := a.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := collect(t, stream)

	want := []Event{ContentEvent{Text: "Hel"}, ContentEvent{Text: "lo"}, DoneEvent{}}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %#v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: got %#v, want %#v", i, events[i], want[i])
		}
	}

	if gotAuth != "Bearer stream-key" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if gotRequestID != "req-123" {
		t.Fatalf("unexpected X-Request-Id: %s", gotRequestID)
	}
	if !gotReq.Stream || gotReq.StreamOptions == nil || !gotReq.StreamOptions.IncludeUsage {
		t.Fatalf("stream requests must set stream=true with usage: %#v", gotReq)
	}
	if gotReq.Model != "gpt-4.1" || gotReq.Messages[0].Content != "Hi" {
		t.Fatalf("unexpected request body: %#v", gotReq)
	}
}

func TestOpenAIUsageForwardedVerbatim(t *testing.T) {
	t.Parallel()

	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n",
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":10,\"completion_tokens\":5}}\n\n",
		"data: [DONE]\n\n",
	)
	defer srv.Close()

	a := newOpenAI(t, Config{BaseURL: srv.URL})
	stream, err := a.Stream(context.Background(), userRequest(gpt41, "count"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := collect(t, stream)

	if len(events) != 3 {
		t.Fatalf("expected content, usage, done; got %#v", events)
	}
	usage, ok := events[1].(UsageEvent)
	if !ok {
		t.Fatalf("expected usage event, got %#v", events[1])
	}
	if string(usage.Raw) != `{"prompt_tokens":10,"completion_tokens":5}` {
		t.Fatalf("usage not forwarded verbatim: %s", usage.Raw)
	}
	if usage.Usage.TotalTokens != 15 {
		t.Fatalf("expected derived total 15, got %#v", usage.Usage)
	}
	if _, ok := events[2].(DoneEvent); !ok {
		t.Fatalf("expected done last, got %#v", events[2])
	}
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	t.Parallel()

	srv := sseServer(t,
		": keep-alive\n\n",
		"data: {not json\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"still here\"}}]}\n\n",
		"data: [DONE]\n\n",
	)
	defer srv.Close()

	a := newOpenAI(t, Config{BaseURL: srv.URL})
	stream, err := a.Stream(context.Background(), userRequest(gpt41, "x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := collect(t, stream)

	if len(events) != 2 || events[0] != (ContentEvent{Text: "still here"}) {
		t.Fatalf("malformed frame should be skipped, got %#v", events)
	}
}

func TestFrameSplitAcrossWrites(t *testing.T) {
	t.Parallel()

	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"con",
		"tent\":\"split\"}}]}\n",
		"\ndata: [DO",
		"NE]\n\n",
	)
	defer srv.Close()

	a := newOpenAI(t, Config{BaseURL: srv.URL})
	stream, err := a.Stream(context.Background(), userRequest(gpt41, "x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := collect(t, stream)

	if len(events) != 2 || events[0] != (ContentEvent{Text: "split"}) || events[1] != (DoneEvent{}) {
		t.Fatalf("split frame not reassembled: %#v", events)
	}
}

func TestEOFWithoutSentinelEndsWithDone(t *testing.T) {
	t.Parallel()

	srv := sseServer(t, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
	defer srv.Close()

	a := newOpenAI(t, Config{BaseURL: srv.URL})
	stream, err := a.Stream(context.Background(), userRequest(gpt41, "x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := collect(t, stream)

	if len(events) != 2 || events[1] != (DoneEvent{}) {
		t.Fatalf("expected content then done, got %#v", events)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type brokenBody struct {
	r      io.Reader
	err    error
	closed atomic.Bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, b.err
	}
	return n, err
}

func (b *brokenBody) Close() error {
	b.closed.Store(true)
	return nil
}

func TestMidStreamFailureEmitsSingleError(t *testing.T) {
	t.Parallel()

	body := &brokenBody{
		r: strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n"),
		err: errors.New("connection reset by peer"),
	}

	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:       body,
			Request:    r,
		}, nil
	})}

	a := newOpenAI(t, Config{BaseURL: "http://upstream.invalid", HTTPClient: httpClient})
	stream, err := a.Stream(context.Background(), userRequest(gpt41, "x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := collect(t, stream)

	if len(events) != 3 {
		t.Fatalf("expected two contents and one error, got %#v", events)
	}
	errEv, ok := events[2].(ErrorEvent)
	if !ok {
		t.Fatalf("expected error event last, got %#v", events[2])
	}
	if !strings.Contains(errEv.Details, "connection reset") {
		t.Fatalf("expected read error in details, got %#v", errEv)
	}
	if !body.closed.Load() {
		t.Fatalf("upstream body was not closed")
	}
}

func TestCredentialMissingFailsBeforeNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	a, err := NewOpenAIAdapter(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAIAdapter: %v", err)
	}

	_, err = a.Stream(context.Background(), userRequest(gpt41, "x"))
	var credErr *CredentialMissingError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialMissingError, got %v", err)
	}
	if err.Error() != "OpenAI API key not configured" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if calls.Load() != 0 {
		t.Fatalf("upstream must not be called without a credential")
	}
}

func TestUpstreamRejectedBeforeStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	a := newOpenAI(t, Config{BaseURL: srv.URL, MaxRetries: -1})
	_, err := a.Stream(context.Background(), userRequest(gpt41, "x"))

	var rejected *UpstreamRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected UpstreamRejectedError, got %v", err)
	}
	if rejected.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rejected.Status)
	}
	if rejected.Message != "Incorrect API key provided" {
		t.Fatalf("unexpected message: %q", rejected.Message)
	}
}

func TestRetriesServerErrorBeforeStreaming(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	a := newOpenAI(t, Config{BaseURL: srv.URL, MaxRetries: 2, BaseBackoff: time.Millisecond})
	stream, err := a.Stream(context.Background(), userRequest(gpt41, "x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	events := collect(t, stream)

	if calls.Load() != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", calls.Load())
	}
	if len(events) != 2 || events[0] != (ContentEvent{Text: "ok"}) {
		t.Fatalf("unexpected events: %#v", events)
	}
}

func TestRetriesExhaustedReportsLastStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "bad gateway")
	}))
	defer srv.Close()

	a := newOpenAI(t, Config{BaseURL: srv.URL, MaxRetries: 1, BaseBackoff: time.Millisecond})
	_, err := a.Stream(context.Background(), userRequest(gpt41, "x"))

	var rejected *UpstreamRejectedError
	if !errors.As(err, &rejected) || rejected.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 rejection, got %v", err)
	}
	if rejected.Body != "bad gateway" {
		t.Fatalf("unexpected body: %q", rejected.Body)
	}
}

func TestFixedTemperatureModelCoercesSettings(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	gpt5 := Model{
		ID:               "gpt-5",
		Provider:         ProviderOpenAI,
		UpstreamName:     "gpt-5",
		FixedTemperature: float64Ptr(1),
		Reasoning:        true,
		MaxOutputTokens:  128000,
	}

	req := userRequest(gpt5, "x")
	req.Config.Temperature = float64Ptr(0.2)
	req.Config.TopP = float64Ptr(0.9)
	req.Config.MaxTokens = intPtr(500)

	a := newOpenAI(t, Config{BaseURL: srv.URL})
	stream, err := a.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	collect(t, stream)

	if gotBody["temperature"] != 1.0 {
		t.Fatalf("expected fixed temperature 1, got %v", gotBody["temperature"])
	}
	if _, ok := gotBody["top_p"]; ok {
		t.Fatalf("top_p must not be sent for fixed temperature models")
	}
	if _, ok := gotBody["max_tokens"]; ok {
		t.Fatalf("max_tokens must not be sent for reasoning models")
	}
	if gotBody["max_completion_tokens"] != 500.0 {
		t.Fatalf("expected max_completion_tokens 500, got %v", gotBody["max_completion_tokens"])
	}
}

func TestCancellationReleasesUpstream(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	a := newOpenAI(t, Config{BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := a.Stream(ctx, userRequest(gpt41, "x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	first := <-stream
	if first != (ContentEvent{Text: "first"}) {
		t.Fatalf("unexpected first event: %#v", first)
	}
	cancel()

	for ev := range stream {
		if IsTerminal(ev) {
			t.Fatalf("no terminal event expected after cancellation, got %#v", ev)
		}
	}
}

func TestRequestBodiesDropUnsupportedParameters(t *testing.T) {
	o3 := Model{
		ID:               "o3",
		Provider:         ProviderOpenAI,
		UpstreamName:     "o3",
		FixedTemperature: float64Ptr(1),
		Reasoning:        true,
	}

	withSampling := func(m Model) StreamRequest {
		req := userRequest(m, "x")
		req.Config.Temperature = float64Ptr(0.7)
		req.Config.TopP = float64Ptr(0.9)
		req.Config.StopSequences = []string{"END"}
		return req
	}

	anthropicReq, err := buildAnthropicRequest(withSampling(sonnet))
	if err != nil {
		t.Fatalf("buildAnthropicRequest: %v", err)
	}

	tests := []struct {
		name    string
		body    any
		present []string
		absent  []string
	}{
		{
			name:    "anthropic sends temperature without top_p",
			body:    anthropicReq,
			present: []string{"temperature", "stop_sequences"},
			absent:  []string{"top_p"},
		},
		{
			name:    "reasoning model sends neither stop nor top_p",
			body:    buildOpenAIRequest(withSampling(o3)),
			present: []string{"temperature"},
			absent:  []string{"stop", "top_p", "max_tokens"},
		},
		{
			name:    "chat model forwards all sampling fields",
			body:    buildOpenAIRequest(withSampling(gpt41)),
			present: []string{"temperature", "top_p", "stop"},
		},
	}

	for _, tt := range tests {
		raw, err := json.Marshal(tt.body)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tt.name, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			t.Fatalf("%s: unmarshal: %v", tt.name, err)
		}
		for _, k := range tt.present {
			if _, ok := fields[k]; !ok {
				t.Fatalf("%s: expected %q in %s", tt.name, k, raw)
			}
		}
		for _, k := range tt.absent {
			if _, ok := fields[k]; ok {
				t.Fatalf("%s: %q must not be sent, got %s", tt.name, k, raw)
			}
		}
	}
}
