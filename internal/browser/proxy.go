package browser

import "sync"

// ProxyPool rotates through a fixed list of proxy URLs, skipping any
// reported failed.
type ProxyPool struct {
	mu     sync.Mutex
	all    []string
	failed map[string]bool
	cursor int
}

// NewProxyPool creates a pool over a fixed list of proxy URLs.
func NewProxyPool(proxies []string) *ProxyPool {
	return &ProxyPool{all: proxies, failed: make(map[string]bool)}
}

// Next returns the next non-failed proxy in rotation, or ("", false) if
// every proxy has been reported failed or the pool is empty.
func (p *ProxyPool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.all) == 0 {
		return "", false
	}
	for i := 0; i < len(p.all); i++ {
		candidate := p.all[p.cursor%len(p.all)]
		p.cursor++
		if !p.failed[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// ReportFailed marks a proxy as unusable for future rotations.
func (p *ProxyPool) ReportFailed(proxy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[proxy] = true
}
