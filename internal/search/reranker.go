package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// rerankBatchSize is the number of (query, document) pairs per model call.
const rerankBatchSize = 8

// Reranker scores (query, document) pairs with a cross-encoder.
// Cross-encoders jointly encode the pair for more accurate relevance than
// bi-encoders, at higher computational cost.
type Reranker interface {
	// Rerank returns one relevance score in [0,1] per document, in input
	// order.
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)

	// Available checks if the reranker service is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// HTTPReranker calls a local cross-encoder service. Scores are cached in
// an LRU keyed by query hash and document content hash; chunk ids are not
// part of the key.
type HTTPReranker struct {
	endpoint string
	client   *http.Client
	cache    *lru.Cache[string, float64]
}

// rerankRequest is the service request body.
type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// rerankResponse is the service response body.
type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTPReranker creates a reranker against a local scoring service.
func NewHTTPReranker(endpoint string, cacheSize int) (*HTTPReranker, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create rerank cache: %w", err)
	}

	return &HTTPReranker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		cache:    cache,
	}, nil
}

// Rerank scores documents in batches, consulting the cache first.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	scores := make([]float64, len(documents))
	var missing []int

	queryHash := hashKey(query)
	for i, doc := range documents {
		if score, ok := r.cache.Get(queryHash + ":" + hashKey(doc)); ok {
			scores[i] = score
		} else {
			missing = append(missing, i)
		}
	}

	for start := 0; start < len(missing); start += rerankBatchSize {
		end := start + rerankBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		docs := make([]string, len(batch))
		for i, idx := range batch {
			docs[i] = documents[idx]
		}

		batchScores, err := r.scoreBatch(ctx, query, docs)
		if err != nil {
			return nil, err
		}
		for i, idx := range batch {
			score := clamp01(batchScores[i])
			scores[idx] = score
			r.cache.Add(queryHash+":"+hashKey(documents[idx]), score)
		}
	}

	return scores, nil
}

// scoreBatch performs one service call.
func (r *HTTPReranker) scoreBatch(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank request: status %d: %s", resp.StatusCode, string(msg))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(result.Scores) != len(documents) {
		return nil, fmt.Errorf("rerank response length mismatch: want %d, got %d",
			len(documents), len(result.Scores))
	}
	return result.Scores, nil
}

// Available probes the service.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (r *HTTPReranker) Close() error {
	r.cache.Purge()
	return nil
}

// Verify interface implementation at compile time.
var _ Reranker = (*HTTPReranker)(nil)

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
