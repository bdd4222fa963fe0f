package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nexagent/nexagent/internal/browser"
	"github.com/nexagent/nexagent/internal/timeline"
	"github.com/nexagent/nexagent/pkg/models"
)

type stubFetcher struct {
	result browser.FetchResult
	err    error
}

func (s stubFetcher) Fetch(ctx context.Context, rawURL, query string) (browser.FetchResult, error) {
	return s.result, s.err
}

func TestBrowserToolExecuteSuccess(t *testing.T) {
	tool := BrowserTool{Pipeline: stubFetcher{result: browser.FetchResult{Title: "Example", Text: "hello world"}}}
	args, _ := json.Marshal(map[string]string{"url": "https://example.com"})

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.IsError() {
		t.Fatalf("result.Error = %q, want none", result.Error)
	}
	if result.Output != "Example\n\nhello world" {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestBrowserToolExecutePropagatesFetchFailure(t *testing.T) {
	tool := BrowserTool{Pipeline: stubFetcher{err: errors.New("browser pipeline exhausted")}}
	args, _ := json.Marshal(map[string]string{"url": "https://example.com"})

	_, err := tool.Execute(context.Background(), args)
	if err == nil {
		t.Fatal("expected a browser-unavailable error")
	}
	if models.KindOf(err) != models.KindBrowserUnavail {
		t.Errorf("error kind = %q, want %q", models.KindOf(err), models.KindBrowserUnavail)
	}
}

// hookFetcher simulates the pipeline's per-attempt reporting: it drives
// whatever AttemptHook the tool installed with three failures and one
// success before returning.
type hookFetcher struct{}

func (hookFetcher) Fetch(ctx context.Context, rawURL, query string) (browser.FetchResult, error) {
	if hook, ok := browser.AttemptHookFrom(ctx); ok {
		hook("playwright.tier1", errors.New("navigation error: rate limited"), time.Millisecond)
		hook("playwright.captcha_retry", errors.New("navigation error: rate limited"), time.Millisecond)
		hook("playwright.ua_rotate", errors.New("navigation error: rate limited"), time.Millisecond)
		hook("playwright.split", nil, time.Millisecond)
	}
	return browser.FetchResult{Text: "OK"}, nil
}

func TestDispatchedBrowserToolRecordsPerAttemptEvents(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(BrowserTool{Pipeline: hookFetcher{}}); err != nil {
		t.Fatalf("register browser: %v", err)
	}
	events := timeline.NewStore()
	events.NewTimeline("conv-1")
	d := NewDispatcher(registry, events)

	args, _ := json.Marshal(map[string]string{"url": "https://example.com"})
	result := d.Dispatch(context.Background(), BrowserToolName, args, DispatchOptions{
		ConversationID: "conv-1",
		Timeout:        time.Second,
	})
	if result.Output != "OK" {
		t.Fatalf("Output = %q, want OK", result.Output)
	}

	tl, _ := events.Get("conv-1")
	if len(tl.RootEvents) != 1 || tl.RootEvents[0].Type != models.EventToolCall {
		t.Fatalf("expected one root tool_call event, got %+v", tl.RootEvents)
	}
	children := tl.RootEvents[0].Children
	if len(children) != 4 {
		t.Fatalf("expected 4 attempt events under the tool_call, got %d", len(children))
	}

	var errorAttempts, successAttempts int
	for _, id := range children {
		evt, ok := events.Event("conv-1", id)
		if !ok {
			t.Fatalf("attempt event %s missing", id)
		}
		if evt.Type != models.EventWebBrowse {
			t.Fatalf("attempt event type = %s, want web_browse", evt.Type)
		}
		switch evt.Status {
		case models.StatusError:
			errorAttempts++
		case models.StatusSuccess:
			successAttempts++
		}
	}
	if errorAttempts != 3 || successAttempts != 1 {
		t.Fatalf("attempts = %d error / %d success, want 3 error / 1 success", errorAttempts, successAttempts)
	}
}

func TestBrowserToolExecuteNoPipelineConfigured(t *testing.T) {
	tool := BrowserTool{}
	args, _ := json.Marshal(map[string]string{"url": "https://example.com"})

	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError() {
		t.Fatal("expected an error result when no pipeline is configured")
	}
}
