package agent

// Message roles understood by providers. System, user and assistant map to
// history turns; tool messages exist only inside a single submission.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a tool invocation
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProviderProfile holds the credentials and endpoint of a completion backend.
type ProviderProfile struct {
	Provider   string `json:"provider" mapstructure:"provider"` // "openai", "azure-openai", "anthropic"
	APIKey     string `json:"api_key" mapstructure:"api_key"`
	Endpoint   string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	APIVersion string `json:"api_version,omitempty" mapstructure:"api_version"`
	// Model is the model name, or the deployment name for azure-openai.
	Model string `json:"model" mapstructure:"model"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}
