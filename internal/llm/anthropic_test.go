package llm

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nexagent/nexagent/pkg/models"
)

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("expected error when API key is empty")
	}
}

func TestNewAnthropicProviderAppliesDefaults(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.maxRetries != 3 || p.retryDelay != time.Second || p.defaultModel == "" {
		t.Fatalf("expected defaults to be applied, got %+v", p)
	}
	if p.Name() != "anthropic" || !p.SupportsTools() {
		t.Fatalf("unexpected Name/SupportsTools")
	}
}

func TestToolResultTextPrefersErrorWhenFailed(t *testing.T) {
	ok := models.ToolResult{ToolCallID: "1", Output: "fine"}
	if got := toolResultText(ok); got != "fine" {
		t.Fatalf("expected output text, got %q", got)
	}
	failed := models.ToolResult{ToolCallID: "2", Error: "boom", Output: "should not be used"}
	if got := toolResultText(failed); got != "boom" {
		t.Fatalf("expected error text, got %q", got)
	}
}

func TestAnthropicConvertMessagesSkipsSystemRole(t *testing.T) {
	p, _ := NewAnthropicProvider(AnthropicConfig{APIKey: "key"})
	messages := []CompletionMessage{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	out, err := p.convertMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected system message to be dropped, got %d messages", len(out))
	}
}

func TestAnthropicConvertMessagesRejectsInvalidToolCallInput(t *testing.T) {
	p, _ := NewAnthropicProvider(AnthropicConfig{APIKey: "key"})
	messages := []CompletionMessage{
		{Role: "assistant", ToolCalls: []models.ToolCall{{ID: "1", Name: "x", Input: json.RawMessage("not-json")}}},
	}
	if _, err := p.convertMessages(messages); err == nil {
		t.Fatal("expected error for invalid tool call input")
	}
}

func TestAnthropicConvertToolsRejectsInvalidSchema(t *testing.T) {
	p, _ := NewAnthropicProvider(AnthropicConfig{APIKey: "key"})
	tools := []models.ToolDeclaration{{Name: "x", ParameterSchema: json.RawMessage("not-json")}}
	if _, err := p.convertTools(tools); err == nil {
		t.Fatal("expected error for invalid tool schema")
	}
}

func TestAnthropicGetModelAndMaxTokensDefaults(t *testing.T) {
	p, _ := NewAnthropicProvider(AnthropicConfig{APIKey: "key", DefaultModel: "claude-test"})
	if got := p.getModel(""); got != "claude-test" {
		t.Fatalf("expected default model, got %q", got)
	}
	if got := p.getModel("claude-override"); got != "claude-override" {
		t.Fatalf("expected override model, got %q", got)
	}
	if got := p.getMaxTokens(0); got != 4096 {
		t.Fatalf("expected default max tokens 4096, got %d", got)
	}
	if got := p.getMaxTokens(100); got != 100 {
		t.Fatalf("expected override max tokens, got %d", got)
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := map[string]bool{
		"429 too many requests":        true,
		"rate_limit_error":             true,
		"503 service unavailable":      true,
		"connection reset by peer":     true,
		"invalid api key":              false,
		"validation error: bad field":  false,
	}
	for msg, want := range cases {
		if got := isRetryableError(errors.New(msg)); got != want {
			t.Errorf("isRetryableError(%q) = %v, want %v", msg, got, want)
		}
	}
	if isRetryableError(nil) {
		t.Fatal("nil error must not be retryable")
	}
}
