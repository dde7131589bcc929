// Package ecommerce implements the gateway's client for the e-commerce
// platform's product and order APIs, called by the ProductQuery,
// ProductDetails, and OrderStatus handlers through a shared circuit breaker.
package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
)

// Product is the subset of catalog fields the handlers surface to customers.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	InStock     bool    `json:"in_stock"`
	Description string  `json:"description"`
}

// Order is the subset of order fields the OrderStatus handler surfaces.
type Order struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	EstimatedDate  string `json:"estimated_delivery"`
}

// Config configures the e-commerce HTTP client.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client calls the e-commerce platform's REST API, wrapping every call in
// the shared circuit breaker and a small bounded retry for transient
// failures.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.CircuitBreaker
}

// New creates a Client bound to the given circuit breaker instance.
func New(cfg Config, breaker *resilience.CircuitBreaker) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}, breaker: breaker}
}

// SearchProducts queries the catalog for products matching name.
func (c *Client) SearchProducts(ctx context.Context, name string) ([]Product, error) {
	var products []Product
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.withRetry(ctx, func(ctx context.Context) error {
			u := fmt.Sprintf("%s/products?q=%s", c.cfg.BaseURL, url.QueryEscape(name))
			return c.getJSON(ctx, u, &products)
		})
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// GetProductDetails fetches the full record for one product id.
func (c *Client) GetProductDetails(ctx context.Context, productID string) (*Product, error) {
	var product Product
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.withRetry(ctx, func(ctx context.Context) error {
			u := fmt.Sprintf("%s/products/%s", c.cfg.BaseURL, url.PathEscape(productID))
			return c.getJSON(ctx, u, &product)
		})
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetOrderStatus fetches the current status for one order id.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.withRetry(ctx, func(ctx context.Context) error {
			u := fmt.Sprintf("%s/orders/%s", c.cfg.BaseURL, url.PathEscape(orderID))
			return c.getJSON(ctx, u, &order)
		})
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// withRetry retries transient (5xx, network) failures up to 3 times with
// exponential backoff; 4xx responses are treated as permanent.
func (c *Client) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		var svcErr *apperrors.ExternalServiceError
		if isExternalServiceError(err, &svcErr) && !svcErr.IsRetryable {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func isExternalServiceError(err error, target **apperrors.ExternalServiceError) bool {
	e, ok := err.(*apperrors.ExternalServiceError)
	if ok {
		*target = e
	}
	return ok
}

func (c *Client) getJSON(ctx context.Context, fullURL string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperrors.ExternalServiceError{Service: "ecommerce", IsRetryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperrors.ExternalServiceError{Service: "ecommerce", IsRetryable: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &apperrors.ExternalServiceError{
			Service:     "ecommerce",
			StatusCode:  resp.StatusCode,
			IsRetryable: resp.StatusCode >= 500,
			Err:         fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode ecommerce response: %w", err)
	}
	return nil
}
