// Package knowledge implements the embedding-based knowledge retriever: a
// small in-memory document set, embedded once and cached to disk keyed by a
// content hash, searched by cosine similarity.
package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/llm/providers"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

// Document is one retrievable chunk of knowledge-base content.
type Document struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	embedding []float32
}

// SearchResult pairs a document with its similarity to the query.
type SearchResult struct {
	Document   Document
	Similarity float64
}

// Config controls batching, cache location, and the default similarity
// cutoff.
type Config struct {
	CachePath           string
	EmbeddingBatchSize  int
	SimilarityThreshold float64
}

type cacheFile struct {
	DocumentsHash string      `json:"documents_hash"`
	Embeddings    [][]float32 `json:"embeddings"`
}

// Retriever holds the document set and its embeddings, refreshed from an
// EmbeddingProvider and persisted to a content-hash-keyed disk cache.
type Retriever struct {
	cfg       Config
	embedder  providers.EmbeddingProvider
	logger    observability.Logger

	mu        sync.RWMutex
	documents []Document
}

// New creates a Retriever. Call LoadDocuments to populate the knowledge base.
func New(embedder providers.EmbeddingProvider, cfg Config, logger observability.Logger) *Retriever {
	if cfg.EmbeddingBatchSize <= 0 {
		cfg.EmbeddingBatchSize = 10
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.75
	}
	if cfg.CachePath == "" {
		cfg.CachePath = "./data/embedding_cache.json"
	}
	return &Retriever{cfg: cfg, embedder: embedder, logger: logger.WithPrefix("knowledge-retriever")}
}

// LoadDocuments sets the document set and ensures every document has an
// embedding, preferring the on-disk cache when its content hash matches.
func (r *Retriever) LoadDocuments(ctx context.Context, docs []Document) error {
	r.mu.Lock()
	r.documents = docs
	hash := r.documentsHash()
	r.mu.Unlock()

	if r.loadCache(hash) {
		r.logger.Info("loaded embeddings from cache", map[string]interface{}{"documents": len(docs)})
		return nil
	}

	return r.generateAndCache(ctx, hash)
}

func (r *Retriever) documentsHash() string {
	type hashable struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	items := make([]hashable, len(r.documents))
	for i, d := range r.documents {
		items[i] = hashable{ID: d.ID, Text: d.Text}
	}
	data, _ := json.Marshal(items)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (r *Retriever) loadCache(hash string) bool {
	data, err := os.ReadFile(r.cfg.CachePath)
	if err != nil {
		return false
	}

	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil {
		return false
	}
	if cached.DocumentsHash != hash {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(cached.Embeddings) != len(r.documents) {
		return false
	}
	for i := range r.documents {
		r.documents[i].embedding = cached.Embeddings[i]
	}
	return true
}

// generateAndCache embeds every document in batches (retrying transient
// failures with exponential backoff) and writes the result to disk.
func (r *Retriever) generateAndCache(ctx context.Context, hash string) error {
	r.mu.RLock()
	texts := make([]string, len(r.documents))
	for i, d := range r.documents {
		texts[i] = d.Text
	}
	r.mu.RUnlock()

	if len(texts) == 0 {
		return nil
	}

	embeddings := make([][]float32, 0, len(texts))
	batchSize := r.cfg.EmbeddingBatchSize

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var batchEmbeddings [][]float32
		op := func() error {
			out, err := r.embedder.Embed(ctx, batch)
			if err != nil {
				return err
			}
			batchEmbeddings = out
			return nil
		}

		bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
			return fmt.Errorf("generate embeddings batch [%d:%d]: %w", start, end, err)
		}
		embeddings = append(embeddings, batchEmbeddings...)
	}

	r.mu.Lock()
	for i := range r.documents {
		if i < len(embeddings) {
			r.documents[i].embedding = embeddings[i]
		}
	}
	r.mu.Unlock()

	return r.writeCache(hash, embeddings)
}

// writeCache persists embeddings atomically: write to a temp file, then
// rename over the real cache path, so a crash mid-write never leaves a
// corrupt cache.
func (r *Retriever) writeCache(hash string, embeddings [][]float32) error {
	data, err := json.Marshal(cacheFile{DocumentsHash: hash, Embeddings: embeddings})
	if err != nil {
		return fmt.Errorf("marshal embedding cache: %w", err)
	}

	dir := filepath.Dir(r.cfg.CachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp := r.cfg.CachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := os.Rename(tmp, r.cfg.CachePath); err != nil {
		return fmt.Errorf("rename cache: %w", err)
	}
	return nil
}

// Search returns up to limit documents whose cosine similarity to query
// meets or exceeds the configured threshold, ranked highest first.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	r.mu.RLock()
	docs := make([]Document, len(r.documents))
	copy(docs, r.documents)
	r.mu.RUnlock()

	if len(docs) == 0 {
		return nil, nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results := make([]SearchResult, 0, len(docs))
	for _, d := range docs {
		if len(d.embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryEmbedding[0], d.embedding)
		if sim >= r.cfg.SimilarityThreshold {
			results = append(results, SearchResult{Document: d, Similarity: sim})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// AddDocument embeds and appends a single new document, then refreshes the
// disk cache.
func (r *Retriever) AddDocument(ctx context.Context, doc Document) error {
	r.mu.Lock()
	for _, existing := range r.documents {
		if existing.ID == doc.ID {
			r.mu.Unlock()
			return fmt.Errorf("document %q already exists", doc.ID)
		}
	}
	r.mu.Unlock()

	embedding, err := r.embedder.Embed(ctx, []string{doc.Text})
	if err != nil || len(embedding) == 0 {
		return fmt.Errorf("embed new document: %w", err)
	}
	doc.embedding = embedding[0]

	r.mu.Lock()
	r.documents = append(r.documents, doc)
	hash := r.documentsHash()
	embeddings := make([][]float32, len(r.documents))
	for i, d := range r.documents {
		embeddings[i] = d.embedding
	}
	r.mu.Unlock()

	return r.writeCache(hash, embeddings)
}

// cosineSimilarity clamps the result to [0,1]; near-duplicate vectors can
// otherwise produce a value fractionally above 1 due to float rounding.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
