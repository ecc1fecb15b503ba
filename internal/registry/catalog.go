package registry

import "promptgate/internal/llm"

func f64(v float64) *float64 { return &v }
func yes() *bool             { t := true; return &t }
func no() *bool              { f := false; return &f }

// builtinCatalog is the public model table. Thinking and non-thinking
// variants of one family point at the same upstream model; the adapter
// switches behaviour with request flags instead.
var builtinCatalog = []llm.Model{
	// OpenAI
	{ID: "gpt-4.1", Provider: llm.ProviderOpenAI, DisplayName: "GPT-4.1", UpstreamName: "gpt-4.1", MaxOutputTokens: 32768},
	{ID: "gpt-4.1-mini", Provider: llm.ProviderOpenAI, DisplayName: "GPT-4.1 mini", UpstreamName: "gpt-4.1-mini", MaxOutputTokens: 32768},
	{ID: "gpt-4o", Provider: llm.ProviderOpenAI, DisplayName: "GPT-4o", UpstreamName: "gpt-4o", MaxOutputTokens: 16384},
	{ID: "gpt-4o-mini", Provider: llm.ProviderOpenAI, DisplayName: "GPT-4o mini", UpstreamName: "gpt-4o-mini", MaxOutputTokens: 16384},
	{ID: "gpt-5", Provider: llm.ProviderOpenAI, DisplayName: "GPT-5", UpstreamName: "gpt-5", FixedTemperature: f64(1), Reasoning: true, MaxOutputTokens: 128000},
	{ID: "gpt-5-mini", Provider: llm.ProviderOpenAI, DisplayName: "GPT-5 mini", UpstreamName: "gpt-5-mini", FixedTemperature: f64(1), Reasoning: true, MaxOutputTokens: 128000},
	{ID: "o3", Provider: llm.ProviderOpenAI, DisplayName: "o3", UpstreamName: "o3", FixedTemperature: f64(1), Reasoning: true, MaxOutputTokens: 100000},
	{ID: "o4-mini", Provider: llm.ProviderOpenAI, DisplayName: "o4-mini", UpstreamName: "o4-mini", FixedTemperature: f64(1), Reasoning: true, MaxOutputTokens: 100000},

	// SiliconFlow
	{ID: "deepseek-v3.1", Provider: llm.ProviderSiliconFlow, DisplayName: "DeepSeek V3.1", UpstreamName: "deepseek-ai/DeepSeek-V3.1", Thinking: no(), MaxOutputTokens: 16384},
	{ID: "deepseek-v3.1-thinking", Provider: llm.ProviderSiliconFlow, DisplayName: "DeepSeek V3.1 (thinking)", UpstreamName: "deepseek-ai/DeepSeek-V3.1", Thinking: yes(), MaxOutputTokens: 16384},
	{ID: "qwen3-235b", Provider: llm.ProviderSiliconFlow, DisplayName: "Qwen3 235B", UpstreamName: "Qwen/Qwen3-235B-A22B", Thinking: no(), MaxOutputTokens: 8192},
	{ID: "qwen3-235b-thinking", Provider: llm.ProviderSiliconFlow, DisplayName: "Qwen3 235B (thinking)", UpstreamName: "Qwen/Qwen3-235B-A22B", Thinking: yes(), MaxOutputTokens: 8192},
	{ID: "kimi-k2", Provider: llm.ProviderSiliconFlow, DisplayName: "Kimi K2", UpstreamName: "moonshotai/Kimi-K2-Instruct", MaxOutputTokens: 16384},

	// Anthropic
	{ID: "claude-sonnet-4-5", Provider: llm.ProviderAnthropic, DisplayName: "Claude Sonnet 4.5", UpstreamName: "claude-sonnet-4-5-20250929", MaxTemperature: 1, ExclusiveSampling: true, DefaultMaxTokens: 8192, MaxOutputTokens: 64000},
	{ID: "claude-opus-4-1", Provider: llm.ProviderAnthropic, DisplayName: "Claude Opus 4.1", UpstreamName: "claude-opus-4-1-20250805", MaxTemperature: 1, ExclusiveSampling: true, DefaultMaxTokens: 8192, MaxOutputTokens: 32000},
	{ID: "claude-3-5-haiku", Provider: llm.ProviderAnthropic, DisplayName: "Claude 3.5 Haiku", UpstreamName: "claude-3-5-haiku-20241022", MaxTemperature: 1, DefaultMaxTokens: 4096, MaxOutputTokens: 8192},
}

// Builtin returns a copy of the built-in catalog.
func Builtin() []llm.Model {
	return append([]llm.Model(nil), builtinCatalog...)
}
