// Package intent classifies a sanitized inbound message into one of the
// gateway's intents using three independent strategies — keyword matching,
// fuzzy matching, and regex pattern matching — combined into a single
// confidence score, plus lightweight entity extraction.
package intent

import (
	"regexp"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

// contextCarryBoost rewards ORDER_STATUS staying sticky across turns: once a
// customer is mid order-status conversation, a short ambiguous follow-up
// ("and today?") should keep routing there.
const contextCarryBoost = 0.2

const (
	orderIDEntityBoost     = 0.3
	productNameEntityBoost = 0.2
)

// defaultConfidenceThreshold is the minimum score Analyze will commit to an
// intent at; anything scoring lower is reported as FALLBACK with confidence
// 0, per the "analyze(M).intent == FALLBACK ∨ analyze(M).confidence ≥ 0.7"
// invariant.
const defaultConfidenceThreshold = 0.7

var wordSplitter = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Analyzer classifies messages into intents.
type Analyzer struct {
	mu                  sync.RWMutex
	keywords            map[models.IntentType][]string
	patterns            map[models.IntentType][]*regexp.Regexp
	weights             Weights
	confidenceThreshold float64
}

// Weights controls how the three strategies combine into one score.
type Weights struct {
	Keyword float64
	Fuzzy   float64
	Pattern float64
}

// DefaultWeights matches the original service's strategy split.
func DefaultWeights() Weights {
	return Weights{Keyword: defaultKeywordWeight, Fuzzy: defaultFuzzyWeight, Pattern: defaultPatternWeight}
}

// NewAnalyzer creates an Analyzer with the default keyword sets, patterns,
// and strategy weights.
func NewAnalyzer() *Analyzer {
	keywords := make(map[models.IntentType][]string, len(defaultKeywordSets))
	for k, v := range defaultKeywordSets {
		keywords[k] = append([]string(nil), v...)
	}
	patterns := make(map[models.IntentType][]*regexp.Regexp, len(defaultIntentPatterns))
	for k, v := range defaultIntentPatterns {
		patterns[k] = append([]*regexp.Regexp(nil), v...)
	}

	return &Analyzer{
		keywords:            keywords,
		patterns:            patterns,
		weights:             DefaultWeights(),
		confidenceThreshold: defaultConfidenceThreshold,
	}
}

// UpdatePatterns replaces the regex set for a single intent at runtime.
func (a *Analyzer) UpdatePatterns(intentType models.IntentType, patterns []*regexp.Regexp) {
	a.updatePatterns(intentType, patterns)
}

// Analyze classifies message. When previousIntent is ORDER_STATUS and the
// message splits into at most four words, ORDER_STATUS gets contextCarryBoost,
// so a conversation already locked onto ORDER_STATUS doesn't bounce to
// FALLBACK on a terse follow-up. No other previous intent is boosted.
func (a *Analyzer) Analyze(message string, previousIntent models.IntentType) models.IntentResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entities := extractEntities(message)
	lower := strings.ToLower(message)
	words := wordSplitter.Split(lower, -1)

	scores := make(map[models.IntentType]float64, len(a.keywords))
	for it := range a.keywords {
		scores[it] = a.score(it, lower, words)
	}

	for _, e := range entities {
		switch e.Type {
		case "order_id":
			scores[models.IntentOrderStatus] += orderIDEntityBoost
		case "product_name":
			scores[models.IntentProductQuery] += productNameEntityBoost
		}
	}

	if previousIntent == models.IntentOrderStatus && len(words) <= 4 {
		scores[models.IntentOrderStatus] += contextCarryBoost
	}

	best, confidence := pickBest(scores)
	if confidence < a.confidenceThreshold {
		best = models.IntentFallback
		confidence = 0
	}

	return models.IntentResult{
		Intent:     best,
		Confidence: clamp01(confidence),
		Entities:   entities,
		Scores:     scores,
	}
}

func (a *Analyzer) score(it models.IntentType, lower string, words []string) float64 {
	kw := a.keywordScore(it, lower)
	fz := a.fuzzyScore(it, words)
	pt := a.patternScore(it, lower)
	return kw*a.weights.Keyword + fz*a.weights.Fuzzy + pt*a.weights.Pattern
}

// keywordScore saturates at one strong signal: a single keyword or phrase
// hit already says "this intent", so it scores 0.5, and a second
// corroborating hit maxes it out at 1.0. Dividing by the size of the whole
// keyword set (as the original count-based scorer did) would dilute a
// message that legitimately matches one clear keyword down to a fraction
// that can never clear the confidence threshold.
func (a *Analyzer) keywordScore(it models.IntentType, lower string) float64 {
	keywords := a.keywords[it]
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	padded := " " + strings.Join(strings.Fields(wordSplitter.ReplaceAllString(lower, " ")), " ") + " "
	for _, kw := range keywords {
		if strings.Contains(padded, " "+kw+" ") {
			hits++
		}
	}
	return clamp01(float64(hits) * 0.5)
}

// fuzzyScore approximates rapidfuzz's partial_ratio: for each keyword, find
// the best (lowest-distance) match among the message's words and convert
// edit distance to a similarity ratio, then take the best keyword match.
func (a *Analyzer) fuzzyScore(it models.IntentType, words []string) float64 {
	keywords := a.keywords[it]
	if len(keywords) == 0 || len(words) == 0 {
		return 0
	}

	best := 0.0
	for _, kw := range keywords {
		kwWords := strings.Fields(kw)
		target := kw
		if len(kwWords) == 1 {
			for _, w := range words {
				if w == "" {
					continue
				}
				ratio := similarityRatio(w, target)
				if ratio > best {
					best = ratio
				}
			}
		}
	}
	return best
}

// similarityRatio converts Levenshtein distance into a [0,1] similarity.
func similarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

func (a *Analyzer) patternScore(it models.IntentType, lower string) float64 {
	patterns := a.patterns[it]
	if len(patterns) == 0 {
		return 0
	}
	hits := 0
	for _, p := range patterns {
		if p.MatchString(lower) {
			hits++
		}
	}
	return float64(hits) / float64(len(patterns))
}

func pickBest(scores map[models.IntentType]float64) (models.IntentType, float64) {
	var best models.IntentType
	bestScore := -1.0
	for it, s := range scores {
		if s > bestScore {
			best = it
			bestScore = s
		}
	}
	return best, bestScore
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
