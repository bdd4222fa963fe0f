package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexagent/nexagent/internal/browser"
	"github.com/nexagent/nexagent/pkg/models"
)

// BrowserToolName is the registry name for the browser pipeline, one of
// the engine-load-heavy tools the agent loop grants an extended timeout.
const BrowserToolName = "browser"

// BrowserFetcher is the subset of *browser.Pipeline a BrowserTool needs,
// kept as an interface so tests can stub it without standing up a real
// browser engine.
type BrowserFetcher interface {
	Fetch(ctx context.Context, rawURL, query string) (browser.FetchResult, error)
}

// BrowserTool exposes the browser pipeline's Fetch as a registry tool so
// the agent loop can drive it.
type BrowserTool struct {
	Pipeline BrowserFetcher
}

func (BrowserTool) Name() string        { return BrowserToolName }
func (BrowserTool) Description() string { return "Fetch and read a web page, retrying through anti-scraping defenses before degrading to a search summary." }
func (BrowserTool) RequiredTools() []string { return nil }

func (BrowserTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string"},
			"query": {"type": "string"}
		},
		"required": ["url"]
	}`)
}

func (t BrowserTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var a struct {
		URL   string `json:"url"`
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return &models.ToolResult{Error: fmt.Sprintf("invalid browser arguments: %v", err)}, nil
	}
	if t.Pipeline == nil {
		return &models.ToolResult{Error: "no browser pipeline configured"}, nil
	}

	// Record each rung of the retry ladder as its own child event under
	// the surrounding tool_call, so a 3-fail-then-succeed run shows three
	// error-status attempts plus one success in the timeline.
	if inv, ok := InvocationFrom(ctx); ok && inv.Events != nil {
		ctx = browser.WithAttemptHook(ctx, func(method string, attemptErr error, elapsed time.Duration) {
			status := models.StatusSuccess
			meta := map[string]any{"method": method, "elapsed_s": elapsed.Seconds()}
			if attemptErr != nil {
				status = models.StatusError
				meta["error"] = attemptErr.Error()
			}
			id := inv.Events.AddEvent(inv.ConversationID, models.EventWebBrowse, "browse attempt", method, inv.ParentEventID, meta)
			inv.Events.CloseEvent(inv.ConversationID, id, status, nil)
		})
	}

	result, err := t.Pipeline.Fetch(ctx, a.URL, a.Query)
	if err != nil {
		return nil, models.NewError(models.KindBrowserUnavail, "browser unavailable", err)
	}
	output := result.Text
	if result.Title != "" {
		output = fmt.Sprintf("%s\n\n%s", result.Title, result.Text)
	}
	return &models.ToolResult{Output: output}, nil
}
