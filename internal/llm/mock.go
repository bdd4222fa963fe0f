package llm

import (
	"context"
	"encoding/json"

	"github.com/nexagent/nexagent/pkg/models"
)

// MockResponse is one scripted reply a MockProvider will emit in sequence.
type MockResponse struct {
	Text     string
	ToolCall *models.ToolCall
	Err      error
}

// MockProvider is a deterministic test double for Provider, used by the
// agent loop's own tests instead of hitting a real backend.
type MockProvider struct {
	name      string
	tools     bool
	responses []MockResponse
	calls     int
	Requests  []*CompletionRequest
}

// NewMockProvider returns a MockProvider that yields responses in order,
// replaying the last one once exhausted.
func NewMockProvider(name string, responses ...MockResponse) *MockProvider {
	return &MockProvider{name: name, tools: true, responses: responses}
}

func (m *MockProvider) Name() string       { return m.name }
func (m *MockProvider) SupportsTools() bool { return m.tools }

// SetSupportsTools lets tests exercise the no-tool-support branch of a
// caller.
func (m *MockProvider) SetSupportsTools(v bool) { m.tools = v }

func (m *MockProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	m.Requests = append(m.Requests, req)

	resp := MockResponse{}
	if len(m.responses) > 0 {
		idx := m.calls
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		resp = m.responses[idx]
		m.calls++
	}

	chunks := make(chan *CompletionChunk, 2)
	go func() {
		defer close(chunks)
		if resp.Err != nil {
			chunks <- &CompletionChunk{Error: resp.Err, Done: true}
			return
		}
		if resp.Text != "" {
			chunks <- &CompletionChunk{Text: resp.Text}
		}
		if resp.ToolCall != nil {
			chunks <- &CompletionChunk{ToolCall: resp.ToolCall}
		}
		chunks <- &CompletionChunk{Done: true}
	}()
	return chunks, nil
}

// MustToolInput is a test helper that marshals v into a ToolCall's Input.
func MustToolInput(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
