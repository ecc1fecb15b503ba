package llm

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

const chatCompletionsPath = "/v1/chat/completions"

// OpenAIAdapter streams from the OpenAI chat completions API.
type OpenAIAdapter struct {
	*client
	endpoint string
}

// NewOpenAIAdapter builds the adapter. An empty APIKey is accepted; streams
// then fail with CredentialMissingError.
func NewOpenAIAdapter(cfg Config, logger *zap.Logger) (*OpenAIAdapter, error) {
	c, err := newClient(ProviderOpenAI, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &OpenAIAdapter{
		client:   c,
		endpoint: c.cfg.BaseURL + chatCompletionsPath,
	}, nil
}

func (a *OpenAIAdapter) Name() string {
	return ProviderOpenAI
}

func (a *OpenAIAdapter) Stream(ctx context.Context, req StreamRequest) (<-chan Event, error) {
	if err := a.checkCredential(); err != nil {
		return nil, err
	}

	body := buildOpenAIRequest(req)

	a.logger.Debug("stream request starting",
		zap.String("model", req.Model.ID),
		zap.String("upstream_model", body.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	resp, err := a.openStream(ctx, a.endpoint, body, map[string]string{
		"Authorization": "Bearer " + a.cfg.APIKey,
	}, req.RequestID)
	if err != nil {
		return nil, err
	}

	return a.pump(ctx, resp, req.Model, decodeChatCompletionChunk(a.logger)), nil
}

func buildOpenAIRequest(req StreamRequest) chatCompletionRequest {
	m := req.Model
	out := chatCompletionRequest{
		Model:         m.UpstreamName,
		Messages:      append([]Message(nil), req.Messages...),
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
		Temperature:   m.Temperature(req.Config.Temperature),
		TopP:          m.TopP(req.Config.Temperature, req.Config.TopP),
		Stop:          m.Stop(req.Config.StopSequences),
	}

	// reasoning models reject max_tokens
	if m.Reasoning {
		out.MaxCompletionTokens = m.MaxTokens(req.Config.MaxTokens)
	} else {
		out.MaxTokens = m.MaxTokens(req.Config.MaxTokens)
	}

	return out
}

// decodeChatCompletionChunk handles the chat-completions chunk format used by
// OpenAI and OpenAI-compatible hosts. Reasoning deltas are not part of the
// unified stream and are dropped.
func decodeChatCompletionChunk(logger *zap.Logger) decodeFunc {
	return func(payload []byte) ([]Event, error) {
		if string(payload) == "[DONE]" {
			return []Event{DoneEvent{}}, nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			return nil, err
		}

		if chunk.Error != nil && chunk.Error.Message != "" {
			return []Event{ErrorEvent{Message: chunk.Error.Message, Details: chunk.Error.Type}}, nil
		}

		var events []Event
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				events = append(events, ContentEvent{Text: choice.Delta.Content})
			}
			if choice.Delta.ReasoningContent != "" {
				logger.Debug("dropping reasoning delta", zap.Int("bytes", len(choice.Delta.ReasoningContent)))
			}
		}

		if present(chunk.Usage) {
			ev, err := usageEvent(chunk.Usage)
			if err != nil {
				if len(events) == 0 {
					return nil, err
				}
				return events, nil
			}
			events = append(events, ev)
		}

		return events, nil
	}
}
