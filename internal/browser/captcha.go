package browser

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// antiScrapingPatterns is the case-insensitive phrase list the pipeline
// matches navigation errors and page text against before escalating.
var antiScrapingPatterns = []string{
	"captcha",
	"cloudflare",
	"403",
	"forbidden",
	"rate limited",
	"rate limit",
	"too many requests",
	"access denied",
	"are you a human",
	"unusual traffic",
}

func matchesAntiScrapingPattern(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range antiScrapingPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// captchaDetectScript scans the DOM for known challenge selectors:
// reCAPTCHA/hCaptcha widgets, Cloudflare challenge markers, and a generic
// text-captcha heuristic.
const captchaDetectScript = `(() => {
  const hasRecaptcha = !!document.querySelector('.g-recaptcha, iframe[src*="recaptcha"]');
  const hasHcaptcha = !!document.querySelector('.h-captcha, iframe[src*="hcaptcha"]');
  const hasCloudflare = !!document.querySelector('#cf-challenge-stage, .cf-browser-verification, #challenge-running');
  const bodyText = (document.body && document.body.innerText || '').toLowerCase();
  const hasTextCaptcha = bodyText.includes('verify you are human') || bodyText.includes('prove you are not a robot');
  let siteKey = null;
  const el = document.querySelector('[data-sitekey]');
  if (el) siteKey = el.getAttribute('data-sitekey');
  return JSON.stringify({
    recaptcha: hasRecaptcha,
    hcaptcha: hasHcaptcha,
    cloudflare: hasCloudflare,
    textCaptcha: hasTextCaptcha,
    siteKey: siteKey,
  });
})();`

// CaptchaDetection is the decoded result of captchaDetectScript.
type CaptchaDetection struct {
	Recaptcha   bool   `json:"recaptcha"`
	Hcaptcha    bool   `json:"hcaptcha"`
	Cloudflare  bool   `json:"cloudflare"`
	TextCaptcha bool   `json:"textCaptcha"`
	SiteKey     string `json:"siteKey"`
}

func (d CaptchaDetection) Present() bool {
	return d.Recaptcha || d.Hcaptcha || d.Cloudflare || d.TextCaptcha
}

// CaptchaSolver submits a (site key, page URL) pair to a solving service
// and returns the solution token. A nil solver means none is configured;
// an unsolved challenge then leaves the pipeline on its normal ladder
// (UA rotation next), and no proxy is reported failed for it.
type CaptchaSolver interface {
	Solve(ctx context.Context, siteKey, pageURL string) (token string, err error)
}

const cloudflarePollInterval = 500 * time.Millisecond
const cloudflarePollTimeout = 30 * time.Second

// handleCaptcha runs the challenge sub-state-machine: detect, then either
// solve-and-submit (recaptcha/hcaptcha with a configured solver),
// poll-for-clearance (cloudflare), or report failure (solved=false). The
// caller does not skip ahead on failure: it continues with UA rotation.
func handleCaptcha(ctx context.Context, d Driver, sessionID, pageURL string, solver CaptchaSolver) (solved bool, err error) {
	raw, err := d.Evaluate(ctx, sessionID, captchaDetectScript)
	if err != nil {
		return false, err
	}
	var det CaptchaDetection
	if err := json.Unmarshal([]byte(raw), &det); err != nil {
		return false, err
	}
	if !det.Present() {
		return true, nil
	}

	if det.Cloudflare {
		return pollCloudflareClearance(ctx, d, sessionID)
	}

	if (det.Recaptcha || det.Hcaptcha) && solver != nil {
		token, serr := solver.Solve(ctx, det.SiteKey, pageURL)
		if serr != nil || token == "" {
			return false, serr
		}
		injectScript := `(() => {
			const resp = document.querySelector('[name="g-recaptcha-response"], [name="h-captcha-response"]');
			if (!resp) return false;
			resp.value = ` + jsQuote(token) + `;
			const form = resp.closest('form');
			if (form) form.submit();
			return true;
		})();`
		if _, err := d.Evaluate(ctx, sessionID, injectScript); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

func pollCloudflareClearance(ctx context.Context, d Driver, sessionID string) (bool, error) {
	deadline := time.Now().Add(cloudflarePollTimeout)
	for time.Now().Before(deadline) {
		raw, err := d.Evaluate(ctx, sessionID, captchaDetectScript)
		if err == nil {
			var det CaptchaDetection
			if json.Unmarshal([]byte(raw), &det) == nil && !det.Cloudflare {
				return true, nil
			}
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(cloudflarePollInterval):
		}
	}
	return false, nil
}

func jsQuote(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}
