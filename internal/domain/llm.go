package domain

// ============================================================
// Provider-neutral language model types
// ============================================================

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// LLMMessage is one turn sent to a language model.
// Assistant turns may carry tool calls; tool turns answer one call by ID.
type LLMMessage struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a function call requested by the model.
// Arguments is the raw JSON object the model produced.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes a callable tool. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolChoice restricts how the model may use the offered tools.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = ""
	// ToolChoiceNone keeps the tool definitions on the request, which
	// providers require once the history holds tool calls, but forbids
	// new calls so the model has to answer.
	ToolChoiceNone ToolChoice = "none"
)

// CompletionRequest is a single model call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []LLMMessage
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	MaxTokens   int
	Temperature float32
}

// Completion is the model's answer.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	Model        string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage counts tokens billed for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
