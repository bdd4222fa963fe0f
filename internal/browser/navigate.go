package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// NavState tracks an agentic crawl: the current URL, crawl depth, the
// URLs already visited, and the page text collected so far.
type NavState struct {
	CurrentURL     string
	Depth          int
	VisitedURLs    []string
	CollectedPages []CollectedPage
	steps          int
}

// CollectedPage is one page's worth of gathered text.
type CollectedPage struct {
	URL  string
	Text string
}

// NavConfig bounds the agentic crawl.
type NavConfig struct {
	MaxDepth       int
	CoverageTarget float64
	MaxPages       int
}

func (c NavConfig) withDefaults() NavConfig {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.CoverageTarget <= 0 {
		c.CoverageTarget = 0.7
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	return c
}

// interactiveElement is one candidate action on the current page.
type interactiveElement struct {
	Kind     string `json:"kind"` // "link", "button", "field"
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Href     string `json:"href"`
}

const interactiveElementsScript = `(() => {
  const els = [];
  document.querySelectorAll('a[href]').forEach((a, i) => {
    if (i > 200) return;
    els.push({kind: 'link', selector: 'a[href]:nth-of-type(' + (i+1) + ')', text: (a.innerText||'').trim().slice(0,120), href: a.getAttribute('href')||''});
  });
  document.querySelectorAll('button, input[type=submit]').forEach((b, i) => {
    if (i > 100) return;
    els.push({kind: 'button', selector: 'button:nth-of-type(' + (i+1) + ')', text: (b.innerText||b.value||'').trim().slice(0,120), href: ''});
  });
  document.querySelectorAll('input[type=text], input[type=search], textarea').forEach((f, i) => {
    if (i > 50) return;
    els.push({kind: 'field', selector: 'input:nth-of-type(' + (i+1) + ')', text: (f.name||f.placeholder||'').trim(), href: ''});
  });
  return JSON.stringify(els);
})();`

// navKeywords are heuristic navigation words that nudge an element's
// score even when it shares no token with the query.
var navKeywords = []string{"details", "next", "more", "view", "read more", "continue", "learn more", "see all"}

func tokenize(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f != "" {
			out[f] = true
		}
	}
	return out
}

func coverage(text string, queryTokens map[string]bool) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	textTokens := tokenize(text)
	hit := 0
	for t := range queryTokens {
		if textTokens[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(queryTokens))
}

func scoreElement(el interactiveElement, queryTokens map[string]bool) float64 {
	score := 0.0
	elTokens := tokenize(el.Text + " " + el.Href)
	for t := range queryTokens {
		if elTokens[t] {
			score += 1.0
		}
	}
	lowerText := strings.ToLower(el.Text)
	for _, kw := range navKeywords {
		if strings.Contains(lowerText, kw) {
			score += 0.5
		}
	}
	return score
}

// Navigate drives an agentic crawl: starting at startURL, it repeatedly
// extracts, scores coverage against query, and, if not yet covered, picks
// and executes the highest-scoring interactive element until a
// termination condition is met.
func Navigate(ctx context.Context, driver Driver, sessionID, startURL, query string, cfg NavConfig) (NavState, error) {
	cfg = cfg.withDefaults()
	state := NavState{CurrentURL: startURL}
	queryTokens := tokenize(query)
	maxSteps := 3 * cfg.MaxDepth

	navRes, err := driver.Navigate(ctx, sessionID, startURL, NavigateOptions{InjectStealth: true})
	if err != nil {
		return state, fmt.Errorf("navigate %s: %w", startURL, err)
	}
	state.CurrentURL = navRes.FinalURL
	state.VisitedURLs = append(state.VisitedURLs, state.CurrentURL)

	for {
		text, err := driver.Extract(ctx, sessionID)
		if err != nil {
			return state, fmt.Errorf("extract %s: %w", state.CurrentURL, err)
		}
		state.CollectedPages = append(state.CollectedPages, CollectedPage{URL: state.CurrentURL, Text: text})

		cov := coverage(text, queryTokens)
		if cov > cfg.CoverageTarget && state.Depth > 0 {
			return state, nil
		}
		if state.Depth >= cfg.MaxDepth || len(state.CollectedPages) >= cfg.MaxPages || state.steps >= maxSteps {
			return state, nil
		}

		raw, err := driver.Evaluate(ctx, sessionID, interactiveElementsScript)
		if err != nil {
			return state, nil
		}
		var elements []interactiveElement
		if err := json.Unmarshal([]byte(raw), &elements); err != nil || len(elements) == 0 {
			return state, nil
		}

		best := elements[0]
		bestScore := scoreElement(best, queryTokens)
		for _, el := range elements[1:] {
			if s := scoreElement(el, queryTokens); s > bestScore {
				best, bestScore = el, s
			}
		}

		if err := executeAction(ctx, driver, sessionID, best); err != nil {
			return state, nil
		}
		state.steps++
		state.Depth++

		if raw, err := driver.Evaluate(ctx, sessionID, "location.href"); err == nil {
			var cur string
			if json.Unmarshal([]byte(raw), &cur) == nil && cur != "" {
				state.CurrentURL = cur
			}
		}
		state.VisitedURLs = append(state.VisitedURLs, state.CurrentURL)
	}
}

func executeAction(ctx context.Context, driver Driver, sessionID string, el interactiveElement) error {
	switch el.Kind {
	case "link", "button":
		return driver.Click(ctx, sessionID, el.Selector)
	case "field":
		_, err := driver.Evaluate(ctx, sessionID, "window.scrollBy(0, window.innerHeight);")
		return err
	default:
		_, err := driver.Evaluate(ctx, sessionID, "window.scrollBy(0, window.innerHeight);")
		return err
	}
}
