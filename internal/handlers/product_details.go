package handlers

import (
	"context"
	"fmt"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/ecommerce"
)

// ProductDetailsHandler answers spec/size/material questions about a
// specific product, identified either by the extracted product name or by
// falling back to a catalog search when no exact id is known.
type ProductDetailsHandler struct {
	client *ecommerce.Client
}

// NewProductDetailsHandler creates a ProductDetailsHandler.
func NewProductDetailsHandler(client *ecommerce.Client) *ProductDetailsHandler {
	return &ProductDetailsHandler{client: client}
}

func (h *ProductDetailsHandler) Handle(ctx context.Context, req Request) (string, error) {
	name := entityValue(req, "product_name")
	if name == "" {
		return "Which product would you like details on?", nil
	}

	products, err := h.client.SearchProducts(ctx, name)
	if err != nil {
		return "", err
	}
	if len(products) == 0 {
		return fmt.Sprintf("I couldn't find details for %q.", name), nil
	}

	details, err := h.client.GetProductDetails(ctx, products[0].ID)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s: %s", details.Name, details.Description), nil
}
