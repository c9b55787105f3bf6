package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/harun/backlog-agent/pkg/agent"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case agent.ProviderAnthropic:
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case agent.ProviderOpenAI:
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateURL requires an absolute http(s) URL
func (v *Validator) ValidateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s: missing host", field)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// MinMaxMessages leaves room for the instructions turn and the message
// being submitted.
const MinMaxMessages = 2

// ValidateMaxMessages validates the conversation history bound
func (v *Validator) ValidateMaxMessages(n int) error {
	if n < MinMaxMessages {
		return fmt.Errorf("max messages must be at least %d, got %d", MinMaxMessages, n)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateSamplingRate validates a trace sampling ratio
func (v *Validator) ValidateSamplingRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %f", rate)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	profile, err := cfg.ProviderProfile()
	if err != nil {
		errors = append(errors, err)
	} else {
		if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
			errors = append(errors, fmt.Errorf("AI provider %s: %w", profile.Provider, err))
		}
		if profile.Provider == agent.ProviderAzureOpenAI {
			if err := v.ValidateURL("azure openai endpoint", profile.Endpoint); err != nil {
				errors = append(errors, err)
			}
			if profile.Model == "" {
				errors = append(errors, fmt.Errorf("azure openai deployment name cannot be empty"))
			}
		} else if profile.Model == "" {
			errors = append(errors, fmt.Errorf("AI provider %s: model name cannot be empty", profile.Provider))
		}
	}

	// Validate tracking service
	if err := v.ValidateURL("devops organization_url", cfg.DevOps.OrganizationURL); err != nil {
		errors = append(errors, err)
	}
	if strings.TrimSpace(cfg.DevOps.Project) == "" {
		errors = append(errors, fmt.Errorf("devops project cannot be empty"))
	}
	if cfg.DevOps.PersonalAccessToken == "" {
		errors = append(errors, fmt.Errorf("devops personal access token cannot be empty"))
	}
	if cfg.DevOps.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("devops timeout_seconds must be >= 0"))
	}

	// Validate agent
	if err := v.ValidateTemperature(cfg.Agent.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}
	if cfg.Agent.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.Agent.MaxTokens); err != nil {
			errors = append(errors, fmt.Errorf("agent: %w", err))
		}
	}
	if err := v.ValidateMaxMessages(cfg.Agent.MaxMessages); err != nil {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}
	if cfg.Agent.MaxToolTurns < 0 {
		errors = append(errors, fmt.Errorf("agent max_tool_turns must be >= 0"))
	}
	if cfg.Agent.ToolTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("agent tool_timeout_seconds must be >= 0"))
	}

	// Validate server
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if cfg.Server.RateLimit.Requests < 0 || cfg.Server.RateLimit.WindowSeconds < 0 {
		errors = append(errors, fmt.Errorf("server rate_limit values must be >= 0"))
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Tracing.OTLPEndpoint != "" {
		if err := v.ValidateSamplingRate(cfg.Tracing.SamplingRate); err != nil {
			errors = append(errors, fmt.Errorf("tracing: %w", err))
		}
	}

	return errors
}
