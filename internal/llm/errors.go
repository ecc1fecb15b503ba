package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest wraps every validation failure of a ChatRequest.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrModelNotFound is returned by the registry for unknown model ids.
	ErrModelNotFound = errors.New("model not found")
)

// CredentialMissingError means the provider has no API key configured.
type CredentialMissingError struct {
	Provider string
}

func (e *CredentialMissingError) Error() string {
	return fmt.Sprintf("%s API key not configured", displayProvider(e.Provider))
}

// UpstreamRejectedError is a non-2xx upstream response received before
// any part of the stream was consumed.
type UpstreamRejectedError struct {
	Provider string
	Status   int
	Body     string

	// Message is the provider's error message when the body carried one.
	Message string
}

func (e *UpstreamRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s upstream rejected request (%d): %s", displayProvider(e.Provider), e.Status, e.Message)
	}
	return fmt.Sprintf("%s upstream rejected request (%d): %s", displayProvider(e.Provider), e.Status, truncate(e.Body, 200))
}

func displayProvider(name string) string {
	switch name {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderSiliconFlow:
		return "SiliconFlow"
	case ProviderAnthropic:
		return "Anthropic"
	default:
		return name
	}
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
