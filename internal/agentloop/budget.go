package agentloop

import "strings"

// Step budget tuning constants.
const (
	baseSteps = 20

	webPerMatch  = 5
	webCap       = 25
	connectorPer = 3
	connectorCap = 30
	dataVerbPer  = 4
	dataVerbCap  = 20

	comprehensiveBonus = 30

	lengthBonus200 = 10
	lengthBonus500 = 15

	hardCeiling = 100
)

var webKeywords = []string{
	"http", "https", "url", "website", "browse", "fetch", "navigate", "scrape", "download",
}

var connectorKeywords = []string{
	"then", "after that", "finally", "next", "once", "followed by",
}

var dataProcessingVerbs = []string{
	"analyze", "analyse", "summarize", "summarise", "extract", "parse", "convert", "compute", "transform",
}

var comprehensiveIndicators = []string{
	"comprehensive", "exhaustive", "detailed",
}

func countMatches(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

func cappedBonus(matches, perMatch, limit int) int {
	bonus := matches * perMatch
	if bonus > limit {
		return limit
	}
	return bonus
}

// ComputeMaxSteps derives the per-prompt step budget: a base of 20,
// capped additive bonuses for web/multi-step/data-processing keywords, a
// flat bonus for "comprehensive" language, length-based bonuses, and a
// hard ceiling of 100.
func ComputeMaxSteps(prompt string) int {
	lower := strings.ToLower(prompt)

	steps := baseSteps
	steps += cappedBonus(countMatches(lower, webKeywords), webPerMatch, webCap)
	steps += cappedBonus(countMatches(lower, connectorKeywords), connectorPer, connectorCap)
	steps += cappedBonus(countMatches(lower, dataProcessingVerbs), dataVerbPer, dataVerbCap)

	if countMatches(lower, comprehensiveIndicators) > 0 {
		steps += comprehensiveBonus
	}

	if len(prompt) > 200 {
		steps += lengthBonus200
	}
	if len(prompt) > 500 {
		steps += lengthBonus500
	}

	if steps > hardCeiling {
		steps = hardCeiling
	}
	return steps
}
