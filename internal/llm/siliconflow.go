package llm

import (
	"context"

	"go.uber.org/zap"
)

// SiliconFlowAdapter streams from SiliconFlow's OpenAI-compatible endpoint.
// It differs from OpenAI in three ways: thinking is a request flag on the
// shared upstream model, reasoning arrives as reasoning_content deltas, and
// usage may be attached to any chunk rather than only the last one.
type SiliconFlowAdapter struct {
	*client
	endpoint string
}

func NewSiliconFlowAdapter(cfg Config, logger *zap.Logger) (*SiliconFlowAdapter, error) {
	c, err := newClient(ProviderSiliconFlow, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &SiliconFlowAdapter{
		client:   c,
		endpoint: c.cfg.BaseURL + chatCompletionsPath,
	}, nil
}

func (a *SiliconFlowAdapter) Name() string {
	return ProviderSiliconFlow
}

func (a *SiliconFlowAdapter) Stream(ctx context.Context, req StreamRequest) (<-chan Event, error) {
	if err := a.checkCredential(); err != nil {
		return nil, err
	}

	body := buildSiliconFlowRequest(req)

	a.logger.Debug("stream request starting",
		zap.String("model", req.Model.ID),
		zap.String("upstream_model", body.Model),
		zap.Boolp("enable_thinking", body.EnableThinking),
	)

	resp, err := a.openStream(ctx, a.endpoint, body, map[string]string{
		"Authorization": "Bearer " + a.cfg.APIKey,
	}, req.RequestID)
	if err != nil {
		return nil, err
	}

	return a.pump(ctx, resp, req.Model, decodeChatCompletionChunk(a.logger)), nil
}

func buildSiliconFlowRequest(req StreamRequest) chatCompletionRequest {
	m := req.Model
	out := chatCompletionRequest{
		Model:       m.UpstreamName,
		Messages:    append([]Message(nil), req.Messages...),
		Stream:      true,
		Temperature: m.Temperature(req.Config.Temperature),
		TopP:        m.TopP(req.Config.Temperature, req.Config.TopP),
		MaxTokens:   m.MaxTokens(req.Config.MaxTokens),
		Stop:        m.Stop(req.Config.StopSequences),
	}
	if m.Thinking != nil {
		out.EnableThinking = boolPtr(*m.Thinking)
	}
	return out
}
