package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/harun/backlog-agent/pkg/agent"
)

// Config represents the backlog agent configuration
type Config struct {
	// AI holds completion backend credentials
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Agent controls conversation behavior
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// DevOps identifies the tracking service project
	DevOps DevOpsConfig `json:"devops" mapstructure:"devops"`

	// Server configures the HTTP chat API
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	// Provider forces a backend; empty selects one from the configured credentials.
	Provider    string            `json:"provider" mapstructure:"provider"`
	OpenAI      OpenAIConfig      `json:"openai" mapstructure:"openai"`
	AzureOpenAI AzureOpenAIConfig `json:"azure_openai" mapstructure:"azure_openai"`
	Anthropic   AnthropicConfig   `json:"anthropic" mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI credentials
type OpenAIConfig struct {
	APIKey string `json:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" mapstructure:"model"`
}

// AzureOpenAIConfig holds Azure OpenAI resource settings
type AzureOpenAIConfig struct {
	Endpoint       string `json:"endpoint" mapstructure:"endpoint"`
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	DeploymentName string `json:"deployment_name" mapstructure:"deployment_name"`
	APIVersion     string `json:"api_version" mapstructure:"api_version"`
}

// AnthropicConfig holds Anthropic credentials
type AnthropicConfig struct {
	APIKey string `json:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" mapstructure:"model"`
}

// AgentConfig controls a conversation session
type AgentConfig struct {
	Instructions       string           `json:"instructions" mapstructure:"instructions"`
	Temperature        float64          `json:"temperature" mapstructure:"temperature"`
	MaxTokens          int              `json:"max_tokens" mapstructure:"max_tokens"`
	MaxMessages        int              `json:"max_messages" mapstructure:"max_messages"`
	MaxToolTurns       int              `json:"max_tool_turns" mapstructure:"max_tool_turns"`
	ToolTimeoutSeconds int              `json:"tool_timeout_seconds" mapstructure:"tool_timeout_seconds"`
	Tools              ToolPolicyConfig `json:"tools" mapstructure:"tools"`
}

// ToolPolicyConfig defines tool access policies
type ToolPolicyConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// DevOpsConfig holds the tracking service connection
type DevOpsConfig struct {
	OrganizationURL     string `json:"organization_url" mapstructure:"organization_url"`
	Project             string `json:"project" mapstructure:"project"`
	PersonalAccessToken string `json:"personal_access_token" mapstructure:"personal_access_token"`
	APIVersion          string `json:"api_version" mapstructure:"api_version"`
	TimeoutSeconds      int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ServerConfig holds HTTP chat API configuration
type ServerConfig struct {
	Host               string          `json:"host" mapstructure:"host"`
	Port               int             `json:"port" mapstructure:"port"`
	AllowAllOrigins    bool            `json:"allow_all_origins" mapstructure:"allow_all_origins"`
	SessionIdleMinutes int             `json:"session_idle_minutes" mapstructure:"session_idle_minutes"`
	RateLimit          RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per client IP
type RateLimitConfig struct {
	Requests      int `json:"requests" mapstructure:"requests"`
	WindowSeconds int `json:"window_seconds" mapstructure:"window_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	Insecure     bool    `json:"insecure" mapstructure:"insecure"`
	SamplingRate float64 `json:"sampling_rate" mapstructure:"sampling_rate"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			OpenAI:      OpenAIConfig{Model: "gpt-4"},
			AzureOpenAI: AzureOpenAIConfig{APIVersion: "2024-06-01"},
			Anthropic:   AnthropicConfig{Model: "claude-sonnet-4-20250514"},
		},
		Agent: AgentConfig{
			Instructions:       agent.DefaultInstructions,
			Temperature:        0.7,
			MaxTokens:          4096,
			MaxMessages:        20,
			MaxToolTurns:       10,
			ToolTimeoutSeconds: 30,
			Tools: ToolPolicyConfig{
				Allow: []string{"*"},
				Deny:  []string{},
			},
		},
		DevOps: DevOpsConfig{
			APIVersion:     "7.1",
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               5000,
			AllowAllOrigins:    true,
			SessionIdleMinutes: 60,
			RateLimit: RateLimitConfig{
				Requests:      60,
				WindowSeconds: 60,
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Tracing: TracingConfig{
			SamplingRate: 1,
		},
	}
}

// ProviderProfile selects the completion backend: an explicit ai.provider
// wins, otherwise Azure OpenAI when both its endpoint and key are set, then
// OpenAI, then Anthropic.
func (c *Config) ProviderProfile() (agent.ProviderProfile, error) {
	provider := strings.TrimSpace(c.AI.Provider)
	if provider == "" {
		switch {
		case c.AI.AzureOpenAI.Endpoint != "" && c.AI.AzureOpenAI.APIKey != "":
			provider = agent.ProviderAzureOpenAI
		case c.AI.OpenAI.APIKey != "":
			provider = agent.ProviderOpenAI
		case c.AI.Anthropic.APIKey != "":
			provider = agent.ProviderAnthropic
		default:
			return agent.ProviderProfile{}, fmt.Errorf("no AI credentials configured: set OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_KEY, or ANTHROPIC_API_KEY")
		}
	}

	switch provider {
	case agent.ProviderAzureOpenAI:
		return agent.ProviderProfile{
			Provider:   agent.ProviderAzureOpenAI,
			APIKey:     c.AI.AzureOpenAI.APIKey,
			Endpoint:   c.AI.AzureOpenAI.Endpoint,
			APIVersion: c.AI.AzureOpenAI.APIVersion,
			Model:      c.AI.AzureOpenAI.DeploymentName,
		}, nil
	case agent.ProviderOpenAI:
		return agent.ProviderProfile{Provider: agent.ProviderOpenAI, APIKey: c.AI.OpenAI.APIKey, Model: c.AI.OpenAI.Model}, nil
	case agent.ProviderAnthropic:
		return agent.ProviderProfile{Provider: agent.ProviderAnthropic, APIKey: c.AI.Anthropic.APIKey, Model: c.AI.Anthropic.Model}, nil
	default:
		return agent.ProviderProfile{}, fmt.Errorf("invalid AI provider %s (must be: %s, %s, %s)", provider, agent.ProviderOpenAI, agent.ProviderAzureOpenAI, agent.ProviderAnthropic)
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.AI.OpenAI.APIKey = Mask(c.AI.OpenAI.APIKey)
	masked.AI.AzureOpenAI.APIKey = Mask(c.AI.AzureOpenAI.APIKey)
	masked.AI.Anthropic.APIKey = Mask(c.AI.Anthropic.APIKey)
	masked.DevOps.PersonalAccessToken = Mask(c.DevOps.PersonalAccessToken)

	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	profile, err := c.ProviderProfile()
	if err != nil {
		return err
	}
	if profile.APIKey == "" {
		return fmt.Errorf("AI provider %s: api_key is required", profile.Provider)
	}
	if profile.Model == "" {
		if profile.Provider == agent.ProviderAzureOpenAI {
			return fmt.Errorf("AI provider %s: deployment_name is required", profile.Provider)
		}
		return fmt.Errorf("AI provider %s: model is required", profile.Provider)
	}

	if c.DevOps.OrganizationURL == "" {
		return fmt.Errorf("devops organization_url is required (AZURE_DEVOPS_ORG_URL)")
	}
	if u, err := url.ParseRequestURI(c.DevOps.OrganizationURL); err != nil || u.Host == "" {
		return fmt.Errorf("devops organization_url is not a valid URL: %s", c.DevOps.OrganizationURL)
	}
	if c.DevOps.Project == "" {
		return fmt.Errorf("devops project is required (AZURE_DEVOPS_PROJECT)")
	}
	if c.DevOps.PersonalAccessToken == "" {
		return fmt.Errorf("devops personal_access_token is required (AZURE_DEVOPS_PAT)")
	}

	if c.Agent.MaxMessages < MinMaxMessages {
		return fmt.Errorf("agent max_messages must be at least %d", MinMaxMessages)
	}

	return nil
}
