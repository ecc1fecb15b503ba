package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	messagesPath        = "/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

var errEmptyConversation = errors.New("conversation has no user or assistant turns")

// AnthropicAdapter streams from the Anthropic Messages API.
type AnthropicAdapter struct {
	*client
	endpoint string
}

func NewAnthropicAdapter(cfg Config, logger *zap.Logger) (*AnthropicAdapter, error) {
	c, err := newClient(ProviderAnthropic, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &AnthropicAdapter{
		client:   c,
		endpoint: c.cfg.BaseURL + messagesPath,
	}, nil
}

func (a *AnthropicAdapter) Name() string {
	return ProviderAnthropic
}

func (a *AnthropicAdapter) Stream(ctx context.Context, req StreamRequest) (<-chan Event, error) {
	if err := a.checkCredential(); err != nil {
		return nil, err
	}

	body, err := buildAnthropicRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	a.logger.Debug("stream request starting",
		zap.String("model", req.Model.ID),
		zap.String("upstream_model", body.Model),
		zap.Int("max_tokens", body.MaxTokens),
	)

	resp, err := a.openStream(ctx, a.endpoint, body, map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": anthropicAPIVersion,
	}, req.RequestID)
	if err != nil {
		return nil, err
	}

	return a.pump(ctx, resp, req.Model, decodeAnthropicEvent), nil
}

// buildAnthropicRequest moves system turns into the system field and joins
// consecutive turns of the same role, which the Messages API expects to alternate.
func buildAnthropicRequest(req StreamRequest) (anthropicRequest, error) {
	m := req.Model

	var system []string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, msg.Content)
			}
			continue
		}
		if n := len(messages); n > 0 && messages[n-1].Role == msg.Role {
			messages[n-1].Content += "\n\n" + msg.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	if len(messages) == 0 {
		return anthropicRequest{}, errEmptyConversation
	}

	return anthropicRequest{
		Model:         m.UpstreamName,
		System:        strings.Join(system, "\n\n"),
		Messages:      messages,
		MaxTokens:     m.MaxTokens(req.Config.MaxTokens),
		Temperature:   m.Temperature(req.Config.Temperature),
		TopP:          m.TopP(req.Config.Temperature, req.Config.TopP),
		StopSequences: m.Stop(req.Config.StopSequences),
		Stream:        true,
	}, nil
}

func decodeAnthropicEvent(payload []byte) ([]Event, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if event.Type == "" {
		return nil, errors.New("missing type field in stream event")
	}

	switch event.Type {
	case "message_start":
		if event.Message != nil && present(event.Message.Usage) {
			ev, err := usageEvent(event.Message.Usage)
			if err != nil {
				return nil, err
			}
			return []Event{ev}, nil
		}

	case "content_block_delta":
		if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
			return []Event{ContentEvent{Text: event.Delta.Text}}, nil
		}

	case "message_delta":
		if present(event.Usage) {
			ev, err := usageEvent(event.Usage)
			if err != nil {
				return nil, err
			}
			return []Event{ev}, nil
		}

	case "message_stop":
		return []Event{DoneEvent{}}, nil

	case "error":
		if event.Error == nil {
			return []Event{ErrorEvent{Message: "upstream reported an error"}}, nil
		}
		return []Event{ErrorEvent{Message: event.Error.Message, Details: event.Error.Type}}, nil
	}

	// ping, content_block_start, content_block_stop, thinking deltas
	return nil, nil
}
