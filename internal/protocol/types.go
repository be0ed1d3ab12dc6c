package protocol

import "encoding/json"

// Message represents a chat message
type Message struct {
	Role        string            `json:"role"` // user, assistant, system, tool
	Content     string            `json:"content"`
	ToolUse     []ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResults []ToolResultBlock `json:"tool_results,omitempty"`
}

// ToolUseBlock represents a capability invocation requested by the assistant
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock represents the result of a capability invocation
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Tool represents a capability definition offered to the model
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolResponse is the structured result every capability boundary returns.
// Failures are values, not panics: the caller decides whether to retry.
type ToolResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// OK wraps a successful capability result.
func OK(data interface{}) ToolResponse {
	return ToolResponse{Success: true, Data: data}
}

// Fail wraps a capability failure.
func Fail(err error, retryable bool) ToolResponse {
	return ToolResponse{Success: false, Error: err.Error(), Retryable: retryable}
}
