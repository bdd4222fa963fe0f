// Package browser implements the hardened navigation pipeline: a
// multi-tier retry ladder with stealth injection, User-Agent rotation and
// proxy fallback that degrades to a search fallback when every browser
// engine is exhausted. Engines sit behind the Driver interface so the
// ladder can hand the same operation to a second implementation.
package browser

import (
	"context"
	"time"
)

// NavigateOptions configures one navigate call.
type NavigateOptions struct {
	Timeout    time.Duration
	UserAgent  string
	ProxyURL   string
	InjectStealth bool
}

// NavigateResult is what a Driver reports after navigating.
type NavigateResult struct {
	FinalURL   string
	StatusCode int
	Title      string
}

// Driver is the black-box surface a headless-browser engine exposes:
// navigate/extract/click primitives plus script evaluation.
type Driver interface {
	// Name identifies the engine, used in telemetry and fallback selection.
	Name() string

	// Navigate opens a session (creating one if needed) and loads url.
	Navigate(ctx context.Context, sessionID, url string, opts NavigateOptions) (NavigateResult, error)

	// Extract returns the textual content of the current page in a session.
	Extract(ctx context.Context, sessionID string) (string, error)

	// Click performs a click on selector within a session's current page.
	Click(ctx context.Context, sessionID, selector string) error

	// Evaluate runs a JS expression in a session's current page and
	// returns its result JSON-encoded. Used by the captcha detector and
	// the agentic-navigation element scan.
	Evaluate(ctx context.Context, sessionID, script string) (string, error)

	// ResetSession discards any browser state for sessionID (new context,
	// new cookies). Used after a proxy rotation.
	ResetSession(ctx context.Context, sessionID string) error

	// Close releases all resources held by the driver.
	Close() error
}

// userAgentPool is the approved User-Agent rotation pool.
var userAgentPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2.1 Safari/605.1.15",
}

// stealthScript is injected into a page on first use of a session to mask
// the automation fingerprint.
const stealthScript = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => false });
  Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
  const originalQuery = window.navigator.permissions.query;
  window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : originalQuery(parameters)
  );
})();`

func nextUserAgent(counter int) string {
	return userAgentPool[counter%len(userAgentPool)]
}
