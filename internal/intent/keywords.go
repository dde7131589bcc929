package intent

import "github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"

// defaultKeywordSets maps each intent to the whole-word hits that count toward its
// keyword score. Longer, more specific phrases live alongside single words;
// the scorer treats every entry the same weight within its intent.
var defaultKeywordSets = map[models.IntentType][]string{
	models.IntentGreeting: {
		"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
		"greetings", "howdy", "yo",
	},
	models.IntentProductQuery: {
		"product", "item", "price", "cost", "how much", "available", "in stock",
		"catalog", "looking for", "do you have", "sell",
	},
	models.IntentProductDetails: {
		"details", "specification", "specs", "size", "color", "material",
		"dimensions", "weight", "ingredients", "more info",
	},
	models.IntentOrderStatus: {
		"order", "tracking", "shipped", "delivery", "status", "where is my",
		"track my order", "shipment",
	},
	models.IntentKnowledgeQuery: {
		"return policy", "refund", "shipping policy", "warranty", "how do i",
		"can i", "policy", "faq",
	},
}

// defaultKeywordWeight matches the original keyword-match strategy's weight:
// 0.4 of the combined score.
const defaultKeywordWeight = 0.4
const defaultFuzzyWeight = 0.3
const defaultPatternWeight = 0.3
