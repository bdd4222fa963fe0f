package browser

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SearchFunc performs the search-fallback query when every browser engine
// is exhausted. It matches internal/tools.SearchFunc's shape without
// importing that package, so the browser pipeline has no dependency on
// the tool registry.
type SearchFunc func(ctx context.Context, query string) (string, error)

// AttemptHook observes one rung of the retry ladder. Fetch calls it once
// per attempt with the method label, the attempt's error (nil on
// success), and the elapsed time, so a caller can record each attempt as
// its own timeline event.
type AttemptHook func(method string, attemptErr error, elapsed time.Duration)

type attemptHookKey struct{}

// WithAttemptHook returns a context that makes Fetch report every attempt
// to hook.
func WithAttemptHook(ctx context.Context, hook AttemptHook) context.Context {
	return context.WithValue(ctx, attemptHookKey{}, hook)
}

// AttemptHookFrom extracts the attempt hook, if one was attached.
func AttemptHookFrom(ctx context.Context) (AttemptHook, bool) {
	hook, ok := ctx.Value(attemptHookKey{}).(AttemptHook)
	return hook, ok
}

// PipelineConfig tunes the retry ladder's timing.
type PipelineConfig struct {
	BaseTimeout time.Duration
	DelayMin    time.Duration
	DelayMax    time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = 30 * time.Second
	}
	if c.DelayMin <= 0 {
		c.DelayMin = 500 * time.Millisecond
	}
	if c.DelayMax <= 0 {
		c.DelayMax = 2000 * time.Millisecond
	}
	return c
}

// Pipeline runs the retry ladder: tier-1 stealth attempt,
// anti-scraping-triggered UA rotation, split navigate/extract, proxy
// rotation, fallback driver, and finally search-fallback degradation.
type Pipeline struct {
	config    PipelineConfig
	primary   Driver
	fallback  Driver
	proxies   *ProxyPool
	solver    CaptchaSolver
	search    SearchFunc
	telemetry *Telemetry
}

// NewPipeline wires a primary (tier-1) driver, an optional fallback
// driver, an optional proxy pool, an optional captcha solver, and an
// optional search-fallback function.
func NewPipeline(cfg PipelineConfig, primary, fallback Driver, proxies *ProxyPool, solver CaptchaSolver, search SearchFunc) *Pipeline {
	return &Pipeline{
		config:    cfg.withDefaults(),
		primary:   primary,
		fallback:  fallback,
		proxies:   proxies,
		solver:    solver,
		search:    search,
		telemetry: NewTelemetry(),
	}
}

// FetchResult is what Fetch returns on success.
type FetchResult struct {
	Text         string
	Title        string
	FinalURL     string
	Driver       string
	UsedFallback bool
}

// Telemetry exposes the pipeline's per-method call statistics.
func (p *Pipeline) Telemetry() []MethodSnapshot {
	return p.telemetry.Snapshot()
}

// Primary exposes the tier-1 driver for callers that drive it directly,
// such as the agentic-crawl tool.
func (p *Pipeline) Primary() Driver { return p.primary }

func jitterDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := max - min
	return min + time.Duration(rand.Int64N(int64(span)))
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Fetch runs the full retry ladder against rawURL. query, if non-empty,
// is used as the search-fallback query; if it is "", the fallback query
// is derived from rawURL's domain.
func (p *Pipeline) Fetch(ctx context.Context, rawURL, query string) (FetchResult, error) {
	sessionID := "fetch-" + uuid.NewString()
	timeout := p.config.BaseTimeout
	uaAttempt := 0

	hook, _ := AttemptHookFrom(ctx)
	record := func(method string, start time.Time, attemptErr error) {
		elapsed := time.Since(start)
		p.telemetry.Record(method, attemptErr == nil, elapsed)
		if hook != nil {
			hook(method, attemptErr, elapsed)
		}
	}

	// Tier 1: direct combined navigate+extract with stealth + jittered delay.
	start := time.Now()
	if err := sleepOrDone(ctx, jitterDelay(p.config.DelayMin, p.config.DelayMax)); err != nil {
		return FetchResult{}, err
	}
	res, text, err := p.attempt(ctx, p.primary, sessionID, rawURL, NavigateOptions{Timeout: timeout, InjectStealth: true})
	record(p.primary.Name()+".tier1", start, err)
	if err == nil {
		return FetchResult{Text: text, Title: res.Title, FinalURL: res.FinalURL, Driver: p.primary.Name()}, nil
	}

	// Step 2: anti-scraping pattern match drives the captcha sub-state
	// machine; either way, rotate UA and double the timeout before
	// reattempting.
	if matchesAntiScrapingPattern(err.Error()) {
		if solved, _ := handleCaptcha(ctx, p.primary, sessionID, rawURL, p.solver); solved {
			start = time.Now()
			res, text, err = p.attempt(ctx, p.primary, sessionID, rawURL, NavigateOptions{Timeout: timeout})
			record(p.primary.Name()+".captcha_retry", start, err)
			if err == nil {
				return FetchResult{Text: text, Title: res.Title, FinalURL: res.FinalURL, Driver: p.primary.Name()}, nil
			}
		}
	}

	uaAttempt++
	timeout *= 2
	_ = p.primary.ResetSession(ctx, sessionID)
	start = time.Now()
	res, text, err = p.attempt(ctx, p.primary, sessionID, rawURL, NavigateOptions{Timeout: timeout, UserAgent: nextUserAgent(uaAttempt)})
	record(p.primary.Name()+".ua_rotate", start, err)
	if err == nil {
		return FetchResult{Text: text, Title: res.Title, FinalURL: res.FinalURL, Driver: p.primary.Name()}, nil
	}

	// Step 3: split navigate-only then extract-only, in case the joint
	// call failed on one specific sub-step.
	start = time.Now()
	navRes, navErr := p.primary.Navigate(ctx, sessionID, rawURL, NavigateOptions{Timeout: timeout})
	if navErr == nil {
		text, extractErr := p.primary.Extract(ctx, sessionID)
		record(p.primary.Name()+".split", start, extractErr)
		if extractErr == nil {
			return FetchResult{Text: text, Title: navRes.Title, FinalURL: navRes.FinalURL, Driver: p.primary.Name()}, nil
		}
	} else {
		record(p.primary.Name()+".split", start, navErr)
	}

	// Step 4: rotate proxy, reset session, retry with tier-1 parameters.
	if p.proxies != nil {
		if proxy, ok := p.proxies.Next(); ok {
			_ = p.primary.ResetSession(ctx, sessionID)
			start = time.Now()
			res, text, err = p.attempt(ctx, p.primary, sessionID, rawURL, NavigateOptions{Timeout: p.config.BaseTimeout, ProxyURL: proxy})
			record(p.primary.Name()+".proxy_rotate", start, err)
			if err == nil {
				return FetchResult{Text: text, Title: res.Title, FinalURL: res.FinalURL, Driver: p.primary.Name()}, nil
			}
			p.proxies.ReportFailed(proxy)
		}
	}

	// Step 5: fallback driver, same operation surface.
	if p.fallback != nil {
		fallbackSession := "fetch-fallback-" + uuid.NewString()
		start = time.Now()
		res, text, err = p.attempt(ctx, p.fallback, fallbackSession, rawURL, NavigateOptions{Timeout: p.config.BaseTimeout})
		record(p.fallback.Name()+".fallback_driver", start, err)
		_ = p.fallback.ResetSession(ctx, fallbackSession)
		if err == nil {
			return FetchResult{Text: text, Title: res.Title, FinalURL: res.FinalURL, Driver: p.fallback.Name()}, nil
		}
	}

	// Step 6: degrade to search fallback.
	if p.search != nil {
		q := strings.TrimSpace(query)
		if q == "" {
			q = fmt.Sprintf("information from %s", domainOf(rawURL))
		}
		start = time.Now()
		out, serr := p.search(ctx, q)
		record("search_fallback", start, serr)
		if serr == nil {
			return FetchResult{Text: "[BROWSER FALLBACK] " + out, UsedFallback: true}, nil
		}
	}

	return FetchResult{}, fmt.Errorf("browser pipeline exhausted for %s", rawURL)
}

// attempt performs a combined navigate+extract on driver, returning the
// navigation result and extracted text.
func (p *Pipeline) attempt(ctx context.Context, driver Driver, sessionID, rawURL string, opts NavigateOptions) (NavigateResult, string, error) {
	navRes, err := driver.Navigate(ctx, sessionID, rawURL, opts)
	if err != nil {
		return NavigateResult{}, "", err
	}
	text, err := driver.Extract(ctx, sessionID)
	if err != nil {
		return navRes, "", err
	}
	return navRes, text, nil
}

// Close releases both drivers.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.primary != nil {
		if err := p.primary.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.fallback != nil {
		if err := p.fallback.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
