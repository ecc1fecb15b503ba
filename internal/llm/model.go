package llm

const (
	ProviderOpenAI      = "openai"
	ProviderSiliconFlow = "siliconflow"
	ProviderAnthropic   = "anthropic"
)

// Model maps one public model id to what its upstream understands.
type Model struct {
	ID           string `json:"id" yaml:"id"`
	Provider     string `json:"provider" yaml:"provider"`
	DisplayName  string `json:"displayName" yaml:"display_name"`
	UpstreamName string `json:"upstreamName" yaml:"upstream_name"`

	// FixedTemperature is the only temperature the upstream accepts for this
	// model. When set, the caller's temperature and topP are not forwarded.
	FixedTemperature *float64 `json:"fixedTemperature,omitempty" yaml:"fixed_temperature,omitempty"`

	// MaxTemperature caps forwarded temperatures (0 means the request range of 2).
	MaxTemperature float64 `json:"-" yaml:"max_temperature,omitempty"`

	// DefaultMaxTokens is sent when the caller sets no limit and the upstream requires one.
	DefaultMaxTokens int `json:"defaultMaxTokens,omitempty" yaml:"default_max_tokens,omitempty"`

	// MaxOutputTokens caps the caller's maxTokens (0 means no cap).
	MaxOutputTokens int `json:"maxOutputTokens,omitempty" yaml:"max_output_tokens,omitempty"`

	// Thinking selects the reasoning variant of a shared upstream model.
	// nil means the upstream has no thinking switch for this model.
	Thinking *bool `json:"thinking,omitempty" yaml:"thinking,omitempty"`

	// ExclusiveSampling models accept temperature or top_p, not both.
	// topP is dropped whenever a temperature is sent.
	ExclusiveSampling bool `json:"-" yaml:"exclusive_sampling,omitempty"`

	// Reasoning models take max_completion_tokens instead of max_tokens and
	// reject stop sequences.
	Reasoning bool `json:"-" yaml:"reasoning,omitempty"`
}

// Temperature returns the temperature to send upstream, or nil to omit it.
func (m Model) Temperature(requested *float64) *float64 {
	if m.FixedTemperature != nil {
		v := *m.FixedTemperature
		return &v
	}
	if requested == nil {
		return nil
	}
	v := *requested
	if m.MaxTemperature > 0 && v > m.MaxTemperature {
		v = m.MaxTemperature
	}
	return &v
}

// TopP returns the topP to send upstream, or nil to omit it. temperature is
// the caller's requested temperature.
func (m Model) TopP(temperature, requested *float64) *float64 {
	if m.FixedTemperature != nil || requested == nil {
		return nil
	}
	if m.ExclusiveSampling && temperature != nil {
		return nil
	}
	v := *requested
	return &v
}

// Stop returns the stop sequences to send upstream, or nil to omit them.
func (m Model) Stop(requested []string) []string {
	if m.Reasoning || len(requested) == 0 {
		return nil
	}
	return append([]string(nil), requested...)
}

// MaxTokens returns the output token limit to send upstream; 0 means omit.
// Unset or zero requests fall back to DefaultMaxTokens, and anything above
// MaxOutputTokens is lowered to it.
func (m Model) MaxTokens(requested *int) int {
	n := 0
	if requested != nil {
		n = *requested
	}
	if n <= 0 {
		n = m.DefaultMaxTokens
	}
	if m.MaxOutputTokens > 0 && n > m.MaxOutputTokens {
		n = m.MaxOutputTokens
	}
	return n
}

func float64Ptr(v float64) *float64 {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}
