package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodConfig configures the fallback engine.
type RodConfig struct {
	Headless    bool
	Timeout     time.Duration
	RemoteURL   string
	MaxSessions int
}

func (c RodConfig) withDefaults() RodConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	return c
}

type rodSession struct {
	mu   sync.Mutex // one operation at a time per session
	page *rod.Page
}

// RodDriver is a second, independent browser engine used once the tier-1
// playwright driver has exhausted its own retry ladder.
type RodDriver struct {
	config  RodConfig
	browser *rod.Browser
	l       *launcher.Launcher

	mu       sync.Mutex
	sessions map[string]*rodSession
	lru      *sessionLRU
}

// NewRodDriver launches (or connects to) a Chromium instance via go-rod.
func NewRodDriver(cfg RodConfig) (*RodDriver, error) {
	cfg = cfg.withDefaults()
	d := &RodDriver{config: cfg, sessions: make(map[string]*rodSession), lru: newSessionLRU(cfg.MaxSessions)}

	controlURL := cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch rod browser: %w", err)
		}
		d.l = l
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Timeout(cfg.Timeout)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect rod browser: %w", err)
	}
	d.browser = browser
	return d, nil
}

func (d *RodDriver) Name() string { return "rod" }

func (d *RodDriver) session(sessionID string) (*rodSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[sessionID]; ok {
		d.lru.touch(sessionID)
		return s, nil
	}
	if victim, ok := d.lru.evictCandidate(); ok {
		if old, exists := d.sessions[victim]; exists {
			_ = old.page.Close()
			delete(d.sessions, victim)
		}
		d.lru.remove(victim)
	}
	page, err := d.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("new rod page: %w", err)
	}
	s := &rodSession{page: page}
	d.sessions[sessionID] = s
	d.lru.touch(sessionID)
	return s, nil
}

func (d *RodDriver) Navigate(ctx context.Context, sessionID, url string, opts NavigateOptions) (NavigateResult, error) {
	s, err := d.session(sessionID)
	if err != nil {
		return NavigateResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.config.Timeout
	}
	page := s.page.Timeout(timeout)

	if opts.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent})
	}

	if err := page.Navigate(url); err != nil {
		return NavigateResult{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return NavigateResult{}, fmt.Errorf("wait load %s: %w", url, err)
	}

	info, err := page.Info()
	if err != nil {
		return NavigateResult{FinalURL: url}, nil
	}
	return NavigateResult{FinalURL: info.URL, Title: info.Title}, nil
}

func (d *RodDriver) Extract(ctx context.Context, sessionID string) (string, error) {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no active session %s", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	el, err := s.page.Element("body")
	if err != nil {
		return "", fmt.Errorf("locate body: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func (d *RodDriver) Evaluate(ctx context.Context, sessionID, script string) (string, error) {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no active session %s", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.page.Eval(script)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return result.Value.String(), nil
}

func (d *RodDriver) Click(ctx context.Context, sessionID, selector string) error {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active session %s", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	el, err := s.page.Element(selector)
	if err != nil {
		return fmt.Errorf("locate %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *RodDriver) ResetSession(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(d.sessions, sessionID)
	d.lru.remove(sessionID)
	return s.page.Close()
}

func (d *RodDriver) Close() error {
	d.mu.Lock()
	for id, s := range d.sessions {
		_ = s.page.Close()
		delete(d.sessions, id)
		d.lru.remove(id)
	}
	d.mu.Unlock()

	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.l != nil {
		d.l.Cleanup()
	}
	return err
}
