package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/ecommerce"
)

// maxProductQueryResults bounds the numbered list a multi-match reply shows
// before collapsing the rest into an "and N more" tail.
const maxProductQueryResults = 5

// ProductQuery answers "do you have X" / "how much is X" style questions by
// searching the catalog for a product name extracted by the intent analyzer.
type ProductQueryHandler struct {
	client *ecommerce.Client
}

// NewProductQueryHandler creates a ProductQueryHandler.
func NewProductQueryHandler(client *ecommerce.Client) *ProductQueryHandler {
	return &ProductQueryHandler{client: client}
}

func (h *ProductQueryHandler) Handle(ctx context.Context, req Request) (string, error) {
	name := entityValue(req, "product_name")
	if name == "" {
		return "Could you tell me which product you're asking about?", nil
	}

	products, err := h.client.SearchProducts(ctx, name)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		return fmt.Sprintf("I couldn't find a product matching %q. Could you double check the name?", name), nil
	}

	if len(products) == 1 {
		return productDetailLine(products[0]), nil
	}

	shown := products
	var tail string
	if len(shown) > maxProductQueryResults {
		tail = fmt.Sprintf("\n...and %d more.", len(shown)-maxProductQueryResults)
		shown = shown[:maxProductQueryResults]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d products matching %q:", len(products), name)
	for i, p := range shown {
		fmt.Fprintf(&b, "\n%d. %s", i+1, productDetailLine(p))
	}
	b.WriteString(tail)
	return b.String(), nil
}

// productDetailLine renders one product as a single customer-facing line.
func productDetailLine(p ecommerce.Product) string {
	availability := "out of stock"
	if p.InStock {
		availability = "in stock"
	}
	return fmt.Sprintf("%s is %s, priced at %.2f %s.", p.Name, availability, p.Price, p.Currency)
}

func entityValue(req Request, entityType string) string {
	for _, e := range req.Intent.Entities {
		if e.Type == entityType {
			return e.Value
		}
	}
	return ""
}
