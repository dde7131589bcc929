package intent

import (
	"regexp"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

var entityPatterns = map[string]*regexp.Regexp{
	"order_id":     regexp.MustCompile(`(?i)\b(?:order\s*#?\s*)?([A-Z]{1,3}-?\d{4,10})\b`),
	"phone_number": regexp.MustCompile(`\b(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	"email":        regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`),
}

// productNamePattern captures, case-insensitively, the run of letters, digits
// and spaces following a product-query cue word (have, sell, stock, about),
// e.g. "do you have the Blue Widget".
var productNamePattern = regexp.MustCompile(`(?i)(?:have|sell|stock|about)\s+(?:the\s+|a\s+|an\s+)?([A-Za-z][A-Za-z0-9\s]{2,40})`)

// extractEntities pulls order ids, phone numbers, emails, and a best-effort
// product name out of the message.
func extractEntities(message string) []models.Entity {
	var entities []models.Entity

	if m := entityPatterns["order_id"].FindStringSubmatch(message); len(m) > 1 {
		entities = append(entities, models.Entity{Type: "order_id", Value: m[1]})
	}
	if m := entityPatterns["email"].FindString(message); m != "" {
		entities = append(entities, models.Entity{Type: "email", Value: m})
	}
	if m := entityPatterns["phone_number"].FindString(message); m != "" {
		entities = append(entities, models.Entity{Type: "phone_number", Value: m})
	}
	if m := productNamePattern.FindStringSubmatch(message); len(m) > 1 {
		entities = append(entities, models.Entity{Type: "product_name", Value: trimSpaceFold(m[1])})
	}

	return entities
}

func trimSpaceFold(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
