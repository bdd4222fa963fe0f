package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexagent/nexagent/pkg/models"
)

// TerminateToolName is the sentinel tool: a zero-side-effect tool the
// model calls to signal "done."
const TerminateToolName = "terminate"

// TerminateArgs is the payload the model supplies when calling terminate.
type TerminateArgs struct {
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// TerminateTool implements the sentinel tool. It has no side effects; the
// agent loop recognizes calls to it by name and ends the run.
type TerminateTool struct{}

func (TerminateTool) Name() string        { return TerminateToolName }
func (TerminateTool) Description() string { return "Signal that the run is complete with a final status." }
func (TerminateTool) RequiredTools() []string { return nil }

func (TerminateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"status": {"type": "string", "enum": ["success", "failure"]},
			"detail": {"type": "string"}
		},
		"required": ["status"]
	}`)
}

func (TerminateTool) Execute(_ context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var a TerminateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &models.ToolResult{Error: fmt.Sprintf("invalid terminate arguments: %v", err)}, nil
	}
	return &models.ToolResult{Output: fmt.Sprintf("terminated: %s", a.Status)}, nil
}

// SearchFunc performs a web search and returns a short summary; it is the
// external search collaborator the browser pipeline degrades to.
type SearchFunc func(ctx context.Context, query string) (string, error)

// WebSearchToolName is the name tools reference as a dependency.
const WebSearchToolName = "web_search"

// WebSearchTool wraps a SearchFunc as a registry Tool.
type WebSearchTool struct {
	Search SearchFunc
}

func (WebSearchTool) Name() string            { return WebSearchToolName }
func (WebSearchTool) Description() string     { return "Search the web and return a short summary of results." }
func (WebSearchTool) RequiredTools() []string { return nil }

func (WebSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"query": {"type": "string"}},
		"required": ["query"]
	}`)
}

func (t WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return &models.ToolResult{Error: fmt.Sprintf("invalid search arguments: %v", err)}, nil
	}
	if t.Search == nil {
		return &models.ToolResult{Error: "no search backend configured"}, nil
	}
	out, err := t.Search(ctx, a.Query)
	if err != nil {
		return &models.ToolResult{Error: err.Error()}, nil
	}
	return &models.ToolResult{Output: out}, nil
}
