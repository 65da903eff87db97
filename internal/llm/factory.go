package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a new inference provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "openai":
		return NewOpenAIProvider(config)

	case "":
		// No provider configured - return nil (inference disabled)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown inference provider: %s (supported: anthropic, openai)", config.Provider)
	}
}
