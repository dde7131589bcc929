package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/ecommerce"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
)

func testBreaker() *resilience.CircuitBreaker {
	cfg := resilience.DefaultCircuitBreakerConfig("ecommerce-handlers")
	cfg.FailureThreshold = 3
	cfg.ResetTimeout = time.Hour
	return resilience.NewCircuitBreaker(cfg, observability.NewNoopLogger(), nil)
}

func productNameRequest(name string) Request {
	return Request{
		Intent: models.IntentResult{
			Intent:   models.IntentProductQuery,
			Entities: []models.Entity{{Type: "product_name", Value: name}},
		},
	}
}

func TestProductQueryHandler_SingleMatchReturnsDetailLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]ecommerce.Product{
			{ID: "p1", Name: "Blue Widget", Price: 9.99, Currency: "USD", InStock: true},
		})
	}))
	defer srv.Close()

	h := NewProductQueryHandler(ecommerce.New(ecommerce.Config{BaseURL: srv.URL}, testBreaker()))
	out, err := h.Handle(context.Background(), productNameRequest("widget"))
	require.NoError(t, err)
	assert.Contains(t, out, "Blue Widget")
	assert.Contains(t, out, "in stock")
}

func TestProductQueryHandler_MultipleMatchesNumberedWithTail(t *testing.T) {
	products := make([]ecommerce.Product, 7)
	for i := range products {
		products[i] = ecommerce.Product{ID: "p", Name: "Widget", Price: 1, Currency: "USD", InStock: true}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(products)
	}))
	defer srv.Close()

	h := NewProductQueryHandler(ecommerce.New(ecommerce.Config{BaseURL: srv.URL}, testBreaker()))
	out, err := h.Handle(context.Background(), productNameRequest("widget"))
	require.NoError(t, err)
	assert.Contains(t, out, "1. Widget")
	assert.Contains(t, out, "5. Widget")
	assert.NotContains(t, out, "6. Widget")
	assert.Contains(t, out, "and 2 more")
}

func TestProductQueryHandler_NoEntityAsksForClarification(t *testing.T) {
	h := NewProductQueryHandler(ecommerce.New(ecommerce.Config{BaseURL: "http://unused"}, testBreaker()))
	out, err := h.Handle(context.Background(), Request{})
	require.NoError(t, err)
	assert.Contains(t, out, "which product")
}

func TestProductDetailsHandler_ReturnsDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/products" {
			_ = json.NewEncoder(w).Encode([]ecommerce.Product{{ID: "p1", Name: "Blue Widget"}})
			return
		}
		_ = json.NewEncoder(w).Encode(ecommerce.Product{ID: "p1", Name: "Blue Widget", Description: "A fine widget."})
	}))
	defer srv.Close()

	h := NewProductDetailsHandler(ecommerce.New(ecommerce.Config{BaseURL: srv.URL}, testBreaker()))
	out, err := h.Handle(context.Background(), productNameRequest("widget"))
	require.NoError(t, err)
	assert.Equal(t, "Blue Widget: A fine widget.", out)
}

func TestOrderStatusHandler_NoEntityAsksForOrderNumber(t *testing.T) {
	h := NewOrderStatusHandler(ecommerce.New(ecommerce.Config{BaseURL: "http://unused"}, testBreaker()))
	out, err := h.Handle(context.Background(), Request{})
	require.NoError(t, err)
	assert.Contains(t, out, "order number")
}

func TestOrderStatusHandler_ReportsTrackingNumberWhenPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ecommerce.Order{ID: "ORD-1", Status: "shipped", TrackingNumber: "1Z999"})
	}))
	defer srv.Close()

	h := NewOrderStatusHandler(ecommerce.New(ecommerce.Config{BaseURL: srv.URL}, testBreaker()))
	req := Request{Intent: models.IntentResult{Entities: []models.Entity{{Type: "order_id", Value: "ORD-1"}}}}
	out, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, out, "shipped")
	assert.Contains(t, out, "1Z999")
}

type fallbackStub struct{ calls int }

func (f *fallbackStub) Handle(ctx context.Context, req Request) (string, error) {
	f.calls++
	return "let me think about that", nil
}

func TestKnowledgeQueryHandler_ReturnsTopDocumentAboveThreshold(t *testing.T) {
	embedder := &fakeKnowledgeEmbedder{vectors: map[string][]float32{
		"return policy": {1, 0, 0},
		"what is your return policy?": {1, 0, 0},
	}}
	r := knowledge.New(embedder, knowledge.Config{CachePath: t.TempDir() + "/cache.json", SimilarityThreshold: 0.9}, observability.NewNoopLogger())
	require.NoError(t, r.LoadDocuments(context.Background(), []knowledge.Document{
		{ID: "d1", Text: "return policy"},
	}))

	fb := &fallbackStub{}
	h := NewKnowledgeQueryHandler(r, fb)
	out, err := h.Handle(context.Background(), Request{Message: "what is your return policy?"})
	require.NoError(t, err)
	assert.Equal(t, "return policy", out)
	assert.Equal(t, 0, fb.calls)
}

func TestKnowledgeQueryHandler_DelegatesToFallbackBelowThreshold(t *testing.T) {
	embedder := &fakeKnowledgeEmbedder{vectors: map[string][]float32{
		"return policy":  {1, 0, 0},
		"random unrelated question": {0, 1, 0},
	}}
	r := knowledge.New(embedder, knowledge.Config{CachePath: t.TempDir() + "/cache.json", SimilarityThreshold: 0.9}, observability.NewNoopLogger())
	require.NoError(t, r.LoadDocuments(context.Background(), []knowledge.Document{
		{ID: "d1", Text: "return policy"},
	}))

	fb := &fallbackStub{}
	h := NewKnowledgeQueryHandler(r, fb)
	out, err := h.Handle(context.Background(), Request{Message: "random unrelated question"})
	require.NoError(t, err)
	assert.Equal(t, "let me think about that", out)
	assert.Equal(t, 1, fb.calls)
}

type fakeKnowledgeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeKnowledgeEmbedder) Name() string { return "fake" }

func (f *fakeKnowledgeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}
