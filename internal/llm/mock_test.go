package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/nexagent/nexagent/pkg/models"
)

func drainChunks(t *testing.T, ch <-chan *CompletionChunk) []*CompletionChunk {
	t.Helper()
	var out []*CompletionChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestMockProviderEmitsScriptedText(t *testing.T) {
	p := NewMockProvider("mock", MockResponse{Text: "hello there"})
	ch, err := p.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := drainChunks(t, ch)
	if len(chunks) != 2 || chunks[0].Text != "hello there" || !chunks[1].Done {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestMockProviderEmitsToolCall(t *testing.T) {
	tc := &models.ToolCall{ID: "1", Name: "search", Input: MustToolInput(map[string]string{"query": "go"})}
	p := NewMockProvider("mock", MockResponse{ToolCall: tc})
	ch, err := p.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := drainChunks(t, ch)
	if len(chunks) != 2 || chunks[0].ToolCall == nil || chunks[0].ToolCall.Name != "search" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestMockProviderReplaysLastResponse(t *testing.T) {
	p := NewMockProvider("mock", MockResponse{Text: "first"}, MockResponse{Text: "second"})
	for i, want := range []string{"first", "second", "second"} {
		ch, err := p.Complete(context.Background(), &CompletionRequest{})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		chunks := drainChunks(t, ch)
		if chunks[0].Text != want {
			t.Fatalf("call %d: got %q, want %q", i, chunks[0].Text, want)
		}
	}
	if len(p.Requests) != 3 {
		t.Fatalf("expected 3 recorded requests, got %d", len(p.Requests))
	}
}

func TestMockProviderPropagatesError(t *testing.T) {
	p := NewMockProvider("mock", MockResponse{Err: errors.New("boom")})
	ch, _ := p.Complete(context.Background(), &CompletionRequest{})
	chunks := drainChunks(t, ch)
	if len(chunks) != 1 || chunks[0].Error == nil || !chunks[0].Done {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}
