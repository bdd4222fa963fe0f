package browser

import (
	"context"
	"testing"
)

func TestCoverageScoresTokenOverlap(t *testing.T) {
	tokens := tokenize("refund policy electronics")
	cov := coverage("Our refund policy covers electronics purchases within 30 days.", tokens)
	if cov < 0.99 {
		t.Fatalf("expected full coverage, got %f", cov)
	}

	lowCov := coverage("We sell groceries.", tokens)
	if lowCov > 0.34 {
		t.Fatalf("expected low coverage, got %f", lowCov)
	}
}

func TestScoreElementPrefersQueryMatchAndNavKeywords(t *testing.T) {
	tokens := tokenize("refund policy")
	plain := interactiveElement{Kind: "link", Text: "Contact us"}
	relevant := interactiveElement{Kind: "link", Text: "Refund policy details"}

	if scoreElement(relevant, tokens) <= scoreElement(plain, tokens) {
		t.Fatalf("expected relevant element to score higher")
	}
}

type navFakeDriver struct {
	fakeDriver
	elementsJSON string
	locationJSON string
	extractText  func(call int) string
	extractCall  int
}

func (f *navFakeDriver) Evaluate(ctx context.Context, sessionID, script string) (string, error) {
	if script == interactiveElementsScript {
		return f.elementsJSON, nil
	}
	if script == "location.href" {
		return f.locationJSON, nil
	}
	return f.fakeDriver.Evaluate(ctx, sessionID, script)
}

func (f *navFakeDriver) Extract(ctx context.Context, sessionID string) (string, error) {
	f.extractCall++
	if f.extractText != nil {
		return f.extractText(f.extractCall), nil
	}
	return f.fakeDriver.Extract(ctx, sessionID)
}

func TestNavigateStopsOnCoverageTarget(t *testing.T) {
	driver := &navFakeDriver{
		fakeDriver:   fakeDriver{name: "playwright"},
		elementsJSON: `[{"kind":"link","selector":"a","text":"refund policy details","href":"/refund"}]`,
		locationJSON: `"https://example.com/refund"`,
		extractText: func(call int) string {
			if call == 1 {
				return "generic landing page with no relevant content"
			}
			return "our refund policy covers all purchases"
		},
	}
	state, err := Navigate(context.Background(), driver, "nav-1", "https://example.com", "refund policy", NavConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.CollectedPages) != 2 {
		t.Fatalf("expected navigation to stop right after reaching coverage, got %d pages", len(state.CollectedPages))
	}
	if state.Depth != 1 {
		t.Fatalf("expected to stop at depth 1, got %d", state.Depth)
	}
}

func TestNavigateTerminatesAtMaxDepth(t *testing.T) {
	driver := &navFakeDriver{
		fakeDriver:   fakeDriver{name: "playwright"},
		elementsJSON: `[{"kind":"link","selector":"a","text":"unrelated","href":"/x"}]`,
		locationJSON: `"https://example.com/page"`,
	}
	state, err := Navigate(context.Background(), driver, "nav-2", "https://example.com", "something totally unrelated query", NavConfig{MaxDepth: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Depth > 2 {
		t.Fatalf("expected depth capped at 2, got %d", state.Depth)
	}
}
