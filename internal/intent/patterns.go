package intent

import (
	"regexp"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

// defaultIntentPatterns are regex heuristics layered on top of keyword/fuzzy
// matching: order-id shapes, price/availability phrasing, and greeting
// punctuation cues that keyword matching alone would miss.
var defaultIntentPatterns = map[models.IntentType][]*regexp.Regexp{
	models.IntentOrderStatus: {
		regexp.MustCompile(`(?i)\border\s*#?\s*[A-Z]{1,3}-?\d{4,10}\b`),
		regexp.MustCompile(`(?i)\bwhere\s+is\s+my\s+(order|package|delivery)\b`),
		regexp.MustCompile(`(?i)\btrack(ing)?\s+(my\s+)?order\b`),
	},
	models.IntentProductQuery: {
		regexp.MustCompile(`(?i)\bhow\s+much\s+(is|does|for)\b`),
		regexp.MustCompile(`(?i)\b(is|are)\s+.+\s+(available|in\s+stock)\b`),
		regexp.MustCompile(`(?i)\bdo\s+you\s+(have|sell|carry)\b`),
	},
	models.IntentGreeting: {
		regexp.MustCompile(`(?i)^\s*(hi|hello|hey|greetings|howdy)\b`),
	},
	models.IntentKnowledgeQuery: {
		regexp.MustCompile(`(?i)\bwhat\s+is\s+(your|the)\s+(return|refund|shipping)\s+policy\b`),
		regexp.MustCompile(`(?i)\bhow\s+(do|can)\s+i\s+(return|refund|exchange)\b`),
	},
}

// updatePatterns lets an operator replace a single intent's pattern set at
// runtime, mirroring the original service's UpdatePatterns hook. The new set
// is not merged with the old one.
func (a *Analyzer) updatePatterns(intentType models.IntentType, patterns []*regexp.Regexp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.patterns[intentType] = patterns
}
