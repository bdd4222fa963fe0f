// Package classifier scores a prompt for direct ("chat") versus agentic
// handling: a rule + keyword hybrid with calibrated thresholds and a
// short-prompt fallback heuristic.
package classifier

import (
	"regexp"
	"strings"
)

// Kind is the classification outcome.
type Kind string

const (
	KindChat  Kind = "chat"
	KindAgent Kind = "agent"
)

// Classification thresholds. A prompt clearing neither falls through to
// the short-prompt heuristic below.
const (
	ChatThreshold  = 0.60
	AgentThreshold = 0.40

	// shortPromptTokenLimit bounds the fallback heuristic: prompts at or
	// under this many whitespace-separated tokens default to chat unless
	// they contain agentic keywords.
	shortPromptTokenLimit = 20
)

// Result is what Classify returns.
type Result struct {
	Kind       Kind
	ChatScore  float64
	AgentScore float64
}

// echoPrefix strips the trivial UI echo ("What would you like to do
// next?") before scoring.
var echoPrefix = regexp.MustCompile(`(?i)^\s*what would you like to do next\??\s*`)

// chatPatterns are compiled, case-insensitive pattern banks whose match
// contributes directly to chatScore.
var chatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(hi|hello|hey|howdy|yo)\b`),
	regexp.MustCompile(`(?i)^\s*(thanks|thank you|bye|goodbye|see ya)\b`),
	regexp.MustCompile(`(?i)\bwho are you\b`),
	regexp.MustCompile(`(?i)\bwhich model (are you|is this)\b`),
	regexp.MustCompile(`(?i)^\s*what is\s+\d`),
	regexp.MustCompile(`(?i)^\s*\d+\s*[+\-*/]\s*\d+\s*$`),
	regexp.MustCompile(`(?i)\bhow are you\b`),
}

// chatKeywords are single-token signals that nudge chatScore up without
// being a full pattern match.
var chatKeywords = []string{
	"hi", "hello", "hey", "thanks", "thank", "bye", "goodbye",
}

// agentKeywords are verbs/nouns that signal multi-step, tool-using work.
var agentKeywords = []string{
	"build", "create", "analyze", "analyse", "scrape", "fetch", "search",
	"download", "extract", "summarize", "summarise", "compile", "deploy",
	"automate", "schedule", "browse", "navigate", "crawl", "generate",
	"compare", "research", "collect", "monitor", "investigate",
}

// connectorKeywords signal a multi-step plan within one prompt.
var connectorKeywords = []string{
	"then", "after that", "finally", "next", "once", "followed by",
}

// comprehensiveIndicators are "comprehensive / exhaustive / detailed"
// style words; the agent loop's step-budget formula checks the first three.
var comprehensiveIndicators = []string{
	"comprehensive", "exhaustive", "detailed", "thorough", "in-depth",
}

func tokens(prompt string) []string {
	return strings.Fields(prompt)
}

func containsAny(lower string, words []string) int {
	count := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			count++
		}
	}
	return count
}

// Classify scores prompt for direct ("chat") versus agentic handling.
// It is a pure function of its input.
func Classify(prompt string) Result {
	cleaned := echoPrefix.ReplaceAllString(prompt, "")
	trimmed := strings.TrimSpace(cleaned)
	lower := strings.ToLower(trimmed)

	var chatScore float64
	for _, pat := range chatPatterns {
		if pat.MatchString(trimmed) {
			chatScore += 0.5
		}
	}
	chatScore += 0.1 * float64(containsAny(lower, chatKeywords))

	var agentScore float64
	agentScore += 0.2 * float64(containsAny(lower, agentKeywords))
	agentScore += 0.15 * float64(containsAny(lower, connectorKeywords))
	if containsAny(lower, comprehensiveIndicators) > 0 {
		agentScore += 0.3
	}

	if chatScore > 1.0 {
		chatScore = 1.0
	}
	if agentScore > 1.0 {
		agentScore = 1.0
	}

	result := Result{ChatScore: chatScore, AgentScore: agentScore}

	switch {
	case chatScore >= ChatThreshold:
		result.Kind = KindChat
	case agentScore >= AgentThreshold:
		result.Kind = KindAgent
	default:
		// Short prompts are chat unless they carry agentic keywords,
		// connectors, or comprehensive indicators.
		toks := tokens(trimmed)
		hasAgentSignal := containsAny(lower, agentKeywords) > 0 || containsAny(lower, connectorKeywords) > 0 ||
			containsAny(lower, comprehensiveIndicators) > 0
		if len(toks) <= shortPromptTokenLimit && !hasAgentSignal {
			result.Kind = KindChat
		} else {
			result.Kind = KindAgent
		}
	}

	return result
}
