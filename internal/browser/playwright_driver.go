package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightConfig configures the Chromium engine. The driver runs one
// browser and keeps at most MaxSessions live sessions, evicting the
// least-recently-used one; the pipeline handles session reuse/reset.
type PlaywrightConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	RemoteURL      string
	MaxSessions    int
}

func (c PlaywrightConfig) withDefaults() PlaywrightConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1366
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 768
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	return c
}

type playwrightSession struct {
	mu           sync.Mutex // one operation at a time per session
	context      playwright.BrowserContext
	page         playwright.Page
	stealthAdded bool
}

// PlaywrightDriver is the tier-1 Driver implementation: it launches
// Chromium (or connects to a remote endpoint), rotates User-Agents across
// sessions, and injects the stealth script on first navigation.
type PlaywrightDriver struct {
	config  PlaywrightConfig
	pw      *playwright.Playwright
	browser playwright.Browser

	mu       sync.Mutex
	sessions map[string]*playwrightSession
	lru      *sessionLRU
	uaCursor int
}

// NewPlaywrightDriver installs (if needed) and launches playwright.
func NewPlaywrightDriver(cfg PlaywrightConfig) (*PlaywrightDriver, error) {
	cfg = cfg.withDefaults()

	if err := playwright.Install(); err != nil {
		return nil, fmt.Errorf("playwright install: %w", err)
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright run: %w", err)
	}

	d := &PlaywrightDriver{
		config:   cfg,
		pw:       pw,
		sessions: make(map[string]*playwrightSession),
		lru:      newSessionLRU(cfg.MaxSessions),
	}

	if cfg.RemoteURL != "" {
		browser, err := pw.Chromium.Connect(cfg.RemoteURL)
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("connect remote chromium: %w", err)
		}
		d.browser = browser
		return d, nil
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	d.browser = browser
	return d, nil
}

func (d *PlaywrightDriver) Name() string { return "playwright" }

func (d *PlaywrightDriver) session(sessionID, userAgent, proxyURL string) (*playwrightSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[sessionID]; ok {
		d.lru.touch(sessionID)
		return s, nil
	}

	if victim, ok := d.lru.evictCandidate(); ok {
		if old, exists := d.sessions[victim]; exists {
			_ = old.context.Close()
			delete(d.sessions, victim)
		}
		d.lru.remove(victim)
	}

	if userAgent == "" {
		userAgent = nextUserAgent(d.uaCursor)
		d.uaCursor++
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgent),
		Viewport: &playwright.Size{
			Width:  d.config.ViewportWidth,
			Height: d.config.ViewportHeight,
		},
		AcceptDownloads:   playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if proxyURL != "" {
		contextOpts.Proxy = &playwright.Proxy{Server: proxyURL}
	}

	ctx, err := d.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := ctx.NewPage()
	if err != nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(d.config.Timeout.Milliseconds()))

	s := &playwrightSession{context: ctx, page: page}
	d.sessions[sessionID] = s
	d.lru.touch(sessionID)
	return s, nil
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, sessionID, url string, opts NavigateOptions) (NavigateResult, error) {
	s, err := d.session(sessionID, opts.UserAgent, opts.ProxyURL)
	if err != nil {
		return NavigateResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.config.Timeout
	}

	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return NavigateResult{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	if (opts.InjectStealth || !s.stealthAdded) && s.page != nil {
		if _, err := s.page.Evaluate(stealthScript); err == nil {
			s.stealthAdded = true
		}
	}

	title, _ := s.page.Title()
	result := NavigateResult{FinalURL: s.page.URL(), Title: title}
	if resp != nil {
		result.StatusCode = resp.Status()
	}
	return result, nil
}

func (d *PlaywrightDriver) Extract(ctx context.Context, sessionID string) (string, error) {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no active session %s", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	text, err := s.page.InnerText("body")
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func (d *PlaywrightDriver) Evaluate(ctx context.Context, sessionID, script string) (string, error) {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no active session %s", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.page.Evaluate(script)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode evaluate result: %w", err)
	}
	return string(encoded), nil
}

func (d *PlaywrightDriver) Click(ctx context.Context, sessionID, selector string) error {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active session %s", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.Click(selector)
}

func (d *PlaywrightDriver) ResetSession(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(d.sessions, sessionID)
	d.lru.remove(sessionID)
	return s.context.Close()
}

func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	for id, s := range d.sessions {
		_ = s.context.Close()
		delete(d.sessions, id)
		d.lru.remove(id)
	}
	d.mu.Unlock()

	if d.browser != nil {
		_ = d.browser.Close()
	}
	if d.pw != nil {
		return d.pw.Stop()
	}
	return nil
}
