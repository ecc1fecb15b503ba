// Package usage keeps running token totals per model. It is fed once per
// finished stream by the chat handler and read by the usage endpoint.
package usage

import (
	"context"
	"fmt"
	"strings"

	"promptgate/internal/llm"
)

// Key identifies one ledger row.
type Key struct {
	Provider string
	ModelID  string
}

// String renders the key as stored in Redis or the memory map:
// usage:<PROVIDER>:<MODEL_ID>
func (k Key) String() string {
	return fmt.Sprintf("usage:%s:%s", k.Provider, k.ModelID)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "usage" || parts[1] == "" || parts[2] == "" {
		return Key{}, false
	}
	return Key{Provider: parts[1], ModelID: parts[2]}, true
}

// Totals are the accumulated counters of one key.
type Totals struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Streams          int64  `json:"streams"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

func (t *Totals) add(u llm.Usage) {
	t.Streams++
	t.PromptTokens += int64(u.PromptTokens)
	t.CompletionTokens += int64(u.CompletionTokens)
	t.TotalTokens += int64(u.TotalTokens)
}

// Ledger is the interface used by the handlers.
// Implemented by the memory ledger (dev) and the Redis ledger (prod).
type Ledger interface {
	Record(ctx context.Context, key Key, u llm.Usage) error
	Totals(ctx context.Context, key Key) (Totals, bool, error)
}
