package handlers

import (
	"context"
	"fmt"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/ecommerce"
)

// OrderStatusHandler reports shipment status for an order id extracted by
// the intent analyzer's order-id pattern.
type OrderStatusHandler struct {
	client *ecommerce.Client
}

// NewOrderStatusHandler creates an OrderStatusHandler.
func NewOrderStatusHandler(client *ecommerce.Client) *OrderStatusHandler {
	return &OrderStatusHandler{client: client}
}

func (h *OrderStatusHandler) Handle(ctx context.Context, req Request) (string, error) {
	orderID := entityValue(req, "order_id")
	if orderID == "" {
		return "Could you share your order number so I can check its status?", nil
	}

	order, err := h.client.GetOrderStatus(ctx, orderID)
	if err != nil {
		return "", err
	}

	if order.TrackingNumber == "" {
		return fmt.Sprintf("Order %s is currently %s.", order.ID, order.Status), nil
	}
	return fmt.Sprintf("Order %s is currently %s. Tracking number: %s.", order.ID, order.Status, order.TrackingNumber), nil
}
