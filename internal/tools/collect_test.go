package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nexagent/nexagent/internal/browser"
)

type stubDriver struct {
	resets int
}

func (d *stubDriver) Name() string { return "stub" }
func (d *stubDriver) Navigate(ctx context.Context, sessionID, url string, opts browser.NavigateOptions) (browser.NavigateResult, error) {
	return browser.NavigateResult{FinalURL: url}, nil
}
func (d *stubDriver) Extract(ctx context.Context, sessionID string) (string, error) {
	return "", nil
}
func (d *stubDriver) Click(ctx context.Context, sessionID, selector string) error { return nil }
func (d *stubDriver) Evaluate(ctx context.Context, sessionID, script string) (string, error) {
	return "null", nil
}
func (d *stubDriver) ResetSession(ctx context.Context, sessionID string) error {
	d.resets++
	return nil
}
func (d *stubDriver) Close() error { return nil }

func TestWebBrowseToolCollectsPages(t *testing.T) {
	driver := &stubDriver{}
	tool := WebBrowseTool{
		Driver: driver,
		Navigate: func(ctx context.Context, d browser.Driver, sessionID, startURL, query string, cfg browser.NavConfig) (browser.NavState, error) {
			return browser.NavState{
				CurrentURL:  startURL,
				VisitedURLs: []string{startURL},
				CollectedPages: []browser.CollectedPage{
					{URL: startURL, Text: "release notes for the new version"},
				},
			}, nil
		},
	}

	args, _ := json.Marshal(map[string]string{"url": "https://example.com", "query": "release notes"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError() {
		t.Fatalf("unexpected error result: %s", result.Error)
	}
	if !strings.Contains(result.Output, "release notes for the new version") {
		t.Errorf("Output = %q, want collected page text", result.Output)
	}
	if driver.resets != 1 {
		t.Errorf("resets = %d, want the crawl session torn down", driver.resets)
	}
}

func TestWebBrowseToolReportsEmptyCrawl(t *testing.T) {
	tool := WebBrowseTool{
		Driver: &stubDriver{},
		Navigate: func(ctx context.Context, d browser.Driver, sessionID, startURL, query string, cfg browser.NavConfig) (browser.NavState, error) {
			return browser.NavState{}, errors.New("navigate failed")
		},
	}

	args, _ := json.Marshal(map[string]string{"url": "https://example.com", "query": "anything"})
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError() {
		t.Fatal("expected an error result for an empty crawl")
	}
}

func TestWebBrowseToolDependsOnBrowser(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(WebBrowseTool{}); err != nil {
		t.Fatalf("register web_browse: %v", err)
	}

	ok, missing := registry.ValidateDependencies(WebBrowseToolName)
	if ok {
		t.Fatal("expected unmet browser dependency")
	}
	if len(missing) != 1 || missing[0] != BrowserToolName {
		t.Fatalf("missing = %v, want [%s]", missing, BrowserToolName)
	}

	if err := registry.Register(BrowserTool{}); err != nil {
		t.Fatalf("register browser: %v", err)
	}
	if ok, missing := registry.ValidateDependencies(WebBrowseToolName); !ok {
		t.Fatalf("dependencies still unmet: %v", missing)
	}
}
