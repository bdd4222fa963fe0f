package models

import "encoding/json"

// ToolCall is one invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the normalized envelope returned by the dispatcher.
// Exactly one of Output/Error is set; both-empty is invalid and callers
// should treat it as an internal error.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Valid reports whether exactly one of Output/Error is set.
func (r ToolResult) Valid() bool {
	return (r.Output != "") != (r.Error != "")
}

// IsError reports whether this result represents a tool failure.
func (r ToolResult) IsError() bool { return r.Error != "" }

// ToolDeclaration describes a tool's static shape for the registry.
type ToolDeclaration struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	ParameterSchema json.RawMessage `json:"parameter_schema"`
	RequiredTools []string        `json:"required_tools,omitempty"`
}
