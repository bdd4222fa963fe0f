// Package llm defines the provider abstraction the agent loop drives
// (a streaming completion call over a message history with optional tool
// declarations) and its concrete Anthropic and OpenAI backends.
package llm

import (
	"context"

	"github.com/nexagent/nexagent/pkg/models"
)

// Provider is the unified streaming interface every LLM backend presents
// to the agent loop.
type Provider interface {
	// Complete sends a request and returns a channel of streaming chunks.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name identifies the backend for logging/selection.
	Name() string

	// SupportsTools reports whether the backend can receive tool
	// declarations and emit tool-call chunks.
	SupportsTools() bool
}

// CompletionRequest is one turn's worth of context sent to a Provider.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []models.ToolDeclaration
	MaxTokens int
}

// CompletionMessage is one entry in the conversation history presented to
// the model.
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// CompletionChunk is one unit of a streaming response.
type CompletionChunk struct {
	Text         string
	ToolCall     *models.ToolCall
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}
