package llm

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationConfig carries the caller's sampling settings. Optional fields are
// pointers so that "not set" can be told apart from zero.
type GenerationConfig struct {
	Model         string   `json:"model"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

// ChatRequest is the normalized inbound request.
type ChatRequest struct {
	Messages []Message        `json:"messages"`
	Config   GenerationConfig `json:"config"`
}

// Validate reports malformed input. Returned errors wrap ErrInvalidRequest.
func (r *ChatRequest) Validate() error {
	if err := r.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func (r *ChatRequest) validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages must be a non-empty array")
	}

	for i, m := range r.Messages {
		if m.Role != RoleSystem && m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("invalid role %q in messages[%d]", m.Role, i)
		}
		if m.Content == "" && m.Role != RoleSystem {
			return fmt.Errorf("content is required for messages[%d]", i)
		}
	}

	cfg := r.Config
	if cfg.Model == "" {
		return errors.New("config.model is required")
	}
	if cfg.Temperature != nil && (*cfg.Temperature < 0 || *cfg.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if cfg.TopP != nil && (*cfg.TopP < 0 || *cfg.TopP > 1) {
		return errors.New("topP must be between 0 and 1")
	}
	if cfg.MaxTokens != nil && *cfg.MaxTokens < 0 {
		return errors.New("maxTokens must not be negative")
	}
	for i, s := range cfg.StopSequences {
		if s == "" {
			return fmt.Errorf("stopSequences[%d] must not be empty", i)
		}
	}

	return nil
}

// StreamRequest is what an Adapter receives: the resolved model plus the
// caller's conversation and settings.
type StreamRequest struct {
	Model    Model
	Messages []Message
	Config   GenerationConfig

	// RequestID is forwarded upstream as X-Request-Id when set.
	RequestID string
}

// Adapter streams one conversation from one upstream provider.
//
// Stream returns an error only for failures detected before any event is
// produced (missing credential, rejected request). Once the channel is
// returned, failures arrive as a single ErrorEvent and the channel is closed.
// A successful stream ends with exactly one DoneEvent. Cancelling ctx stops
// the decode loop and releases the upstream connection; the channel is then
// closed without a terminal event.
type Adapter interface {
	Name() string
	Stream(ctx context.Context, req StreamRequest) (<-chan Event, error)
}
