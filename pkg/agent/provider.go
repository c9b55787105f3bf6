package agent

import (
	"context"
	"fmt"
)

// Provider names accepted by ProviderFactory.
const (
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure-openai"
	ProviderAnthropic   = "anthropic"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call. System turns are
// carried in Messages in conversation order.
type LLMRequest struct {
	Model       string
	Messages    []AgentMessage
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ToolSpec describes a callable tool to the completion backend.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a new LLM provider based on the provider profile
func (f *ProviderFactory) NewProvider(profile ProviderProfile) (LLMProvider, error) {
	switch profile.Provider {
	case ProviderAnthropic:
		if profile.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropicProvider(profile.APIKey), nil
	case ProviderOpenAI:
		if profile.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(profile.APIKey), nil
	case ProviderAzureOpenAI:
		if profile.Endpoint == "" || profile.APIKey == "" {
			return nil, fmt.Errorf("azure-openai provider requires an endpoint and an API key")
		}
		return NewAzureOpenAIProvider(profile.Endpoint, profile.APIKey, profile.APIVersion), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
