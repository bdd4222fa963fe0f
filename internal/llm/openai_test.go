package llm

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexagent/nexagent/pkg/models"
)

func TestNewOpenAIProviderAppliesDefaults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	if p.maxRetries != 3 || p.defaultModel != "gpt-4o" {
		t.Fatalf("expected defaults to be applied, got %+v", p)
	}
	if p.Name() != "openai" || !p.SupportsTools() {
		t.Fatalf("unexpected Name/SupportsTools")
	}
}

func TestOpenAIConvertMessagesPrependsSystemAndFlattensToolResults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "key"})
	messages := []CompletionMessage{
		{Role: "user", Content: "hi"},
		{Role: "tool", ToolResults: []models.ToolResult{
			{ToolCallID: "1", Output: "42"},
			{ToolCallID: "2", Error: "failed"},
		}},
	}
	out := p.convertMessages(messages, "be terse")
	if len(out) != 4 {
		t.Fatalf("expected system + user + 2 tool results, got %d", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be terse" {
		t.Fatalf("expected leading system message, got %+v", out[0])
	}
	if out[2].ToolCallID != "1" || out[2].Content != "42" {
		t.Fatalf("unexpected first tool result: %+v", out[2])
	}
	if out[3].ToolCallID != "2" || out[3].Content != "failed" {
		t.Fatalf("unexpected second tool result (should carry error text): %+v", out[3])
	}
}

func TestOpenAIConvertMessagesCarriesAssistantToolCalls(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "key"})
	messages := []CompletionMessage{
		{Role: "assistant", ToolCalls: []models.ToolCall{
			{ID: "call-1", Name: "search", Input: json.RawMessage(`{"query":"go"}`)},
		}},
	}
	out := p.convertMessages(messages, "")
	if len(out) != 1 || len(out[0].ToolCalls) != 1 {
		t.Fatalf("expected one message with one tool call, got %+v", out)
	}
	tc := out[0].ToolCalls[0]
	if tc.ID != "call-1" || tc.Function.Name != "search" || tc.Function.Arguments != `{"query":"go"}` {
		t.Fatalf("unexpected converted tool call: %+v", tc)
	}
}

func TestOpenAIConvertToolsBuildsFunctionDefinitions(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "key"})
	tools := []models.ToolDeclaration{
		{Name: "search", Description: "search the web", ParameterSchema: json.RawMessage(`{"type":"object"}`)},
	}
	out := p.convertTools(tools)
	if len(out) != 1 || out[0].Function.Name != "search" || out[0].Function.Description != "search the web" {
		t.Fatalf("unexpected converted tools: %+v", out)
	}
}

func TestOpenAIGetModelDefaultsAndOverrides(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{DefaultModel: "gpt-test"})
	if got := p.getModel(""); got != "gpt-test" {
		t.Fatalf("expected default model, got %q", got)
	}
	if got := p.getModel("gpt-override"); got != "gpt-override" {
		t.Fatalf("expected override model, got %q", got)
	}
}

func TestOpenAICompleteRequiresAPIKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	if _, err := p.Complete(nil, &CompletionRequest{}); err == nil { //nolint:staticcheck
		t.Fatal("expected error when API key is not configured")
	}
}
