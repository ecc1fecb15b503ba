package llm

import "encoding/json"

// Event is one unit of a unified stream: ContentEvent, UsageEvent, DoneEvent
// or ErrorEvent. DoneEvent and ErrorEvent are terminal.
type Event interface {
	isEvent()
}

// ContentEvent is an incremental text fragment of the assistant reply.
type ContentEvent struct {
	Text string
}

// UsageEvent carries token accounting exactly as the upstream reported it.
// Raw is forwarded to the caller verbatim; Usage is the parsed view.
type UsageEvent struct {
	Raw   json.RawMessage
	Usage Usage
}

// DoneEvent marks successful completion.
type DoneEvent struct{}

// ErrorEvent marks a failure after streaming began.
type ErrorEvent struct {
	Message string
	Details string
}

func (ContentEvent) isEvent() {}
func (UsageEvent) isEvent()   {}
func (DoneEvent) isEvent()    {}
func (ErrorEvent) isEvent()   {}

// IsTerminal reports whether no event may follow e.
func IsTerminal(e Event) bool {
	switch e.(type) {
	case DoneEvent, ErrorEvent:
		return true
	default:
		return false
	}
}

// Kind is a short label for logs and metrics.
func Kind(e Event) string {
	switch e.(type) {
	case ContentEvent:
		return "content"
	case UsageEvent:
		return "usage"
	case DoneEvent:
		return "done"
	case ErrorEvent:
		return "error"
	default:
		return "unknown"
	}
}

// Usage is the token count view of a usage payload. Both the OpenAI-style
// (prompt/completion) and Anthropic-style (input/output) names are read.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ParseUsage extracts token counts from a raw usage object.
func ParseUsage(raw json.RawMessage) (Usage, error) {
	var u struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return Usage{}, err
	}

	out := Usage{
		PromptTokens:     max(u.PromptTokens, u.InputTokens),
		CompletionTokens: max(u.CompletionTokens, u.OutputTokens),
		TotalTokens:      u.TotalTokens,
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return out, nil
}

// Merge combines two reports of the same stream. Upstreams send cumulative
// counters, so each field keeps the larger value.
func (u Usage) Merge(other Usage) Usage {
	out := Usage{
		PromptTokens:     max(u.PromptTokens, other.PromptTokens),
		CompletionTokens: max(u.CompletionTokens, other.CompletionTokens),
	}
	out.TotalTokens = max(u.TotalTokens, other.TotalTokens, out.PromptTokens+out.CompletionTokens)
	return out
}

// IsZero reports whether no tokens were counted.
func (u Usage) IsZero() bool {
	return u == Usage{}
}
