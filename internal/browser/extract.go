package browser

import (
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// ExtractReadable runs readability extraction over raw page HTML. The
// pipeline does not call it: every ladder step, including the
// extract-only step, uses the driver's own Extract (page body text).
func ExtractReadable(rawURL, html string) (title, text string, err error) {
	base, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), base)
	if err != nil {
		return "", "", fmt.Errorf("readability extract: %w", err)
	}
	if strings.TrimSpace(article.TextContent) == "" {
		return "", "", fmt.Errorf("readability extract: no article content found")
	}
	return strings.TrimSpace(article.Title), strings.TrimSpace(article.TextContent), nil
}
