package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nexagent/nexagent/internal/browser"
	"github.com/nexagent/nexagent/pkg/models"
)

// WebBrowseToolName is the registry name for the agentic crawl: "collect
// info from URL X about query Q" by following the most promising links
// until coverage is reached.
const WebBrowseToolName = "web_browse"

// maxPageExcerpt bounds how much of each collected page's text lands in
// the tool output.
const maxPageExcerpt = 2000

// NavigatorFunc runs the crawl; browser.Navigate satisfies it, and tests
// can substitute a stub without a real engine.
type NavigatorFunc func(ctx context.Context, driver browser.Driver, sessionID, startURL, query string, cfg browser.NavConfig) (browser.NavState, error)

// WebBrowseTool drives an agentic crawl over the tier-1 browser driver.
// It declares a dependency on the browser tool: without a working browser
// pipeline there is no engine for the crawl to steer.
type WebBrowseTool struct {
	Driver   browser.Driver
	Config   browser.NavConfig
	Navigate NavigatorFunc
}

func (WebBrowseTool) Name() string { return WebBrowseToolName }
func (WebBrowseTool) Description() string {
	return "Browse from a starting URL, following the most relevant links to collect information about a query."
}
func (WebBrowseTool) RequiredTools() []string { return []string{BrowserToolName} }

func (WebBrowseTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string"},
			"query": {"type": "string"},
			"max_depth": {"type": "integer", "minimum": 1, "maximum": 10}
		},
		"required": ["url", "query"]
	}`)
}

func (t WebBrowseTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var a struct {
		URL      string `json:"url"`
		Query    string `json:"query"`
		MaxDepth int    `json:"max_depth"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return &models.ToolResult{Error: fmt.Sprintf("invalid browse arguments: %v", err)}, nil
	}
	if t.Driver == nil {
		return &models.ToolResult{Error: "no browser driver configured"}, nil
	}

	navigate := t.Navigate
	if navigate == nil {
		navigate = browser.Navigate
	}

	cfg := t.Config
	if a.MaxDepth > 0 {
		cfg.MaxDepth = a.MaxDepth
	}

	sessionID := "browse-" + uuid.NewString()
	defer func() { _ = t.Driver.ResetSession(context.Background(), sessionID) }()

	state, err := navigate(ctx, t.Driver, sessionID, a.URL, a.Query, cfg)
	if len(state.CollectedPages) == 0 {
		if err != nil {
			return &models.ToolResult{Error: err.Error()}, nil
		}
		return &models.ToolResult{Error: fmt.Sprintf("no content collected from %s", a.URL)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Collected %d page(s) across %d visit(s):\n\n", len(state.CollectedPages), len(state.VisitedURLs))
	for _, page := range state.CollectedPages {
		excerpt := page.Text
		if len(excerpt) > maxPageExcerpt {
			excerpt = excerpt[:maxPageExcerpt] + "..."
		}
		fmt.Fprintf(&b, "URL: %s\n%s\n\n", page.URL, excerpt)
	}
	return &models.ToolResult{Output: strings.TrimSpace(b.String())}, nil
}
