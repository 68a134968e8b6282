package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// OllamaEmbedder generates embeddings through a local Ollama server.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu     sync.RWMutex
	closed bool
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the server endpoint (default http://localhost:11434).
	Host string
	// Model is the embedding model name.
	Model string
	// Dimensions is the expected embedding dimension.
	Dimensions int
	// InferenceTimeout bounds a single /api/embed call.
	InferenceTimeout time.Duration
	// PoolSize is the HTTP connection pool size.
	PoolSize int
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedder. No health check happens
// here; Available probes the server on demand so a missing model degrades
// instead of failing construction.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = DefaultInferenceTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: per-request contexts carry the inference
	// deadline so the halving retry can shorten it.
	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in input order. A
// timeout halves the input set and retries each half, per the inference
// contract.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vecs, err := e.embedOnce(ctx, texts)
	if err == nil {
		return vecs, nil
	}

	// Halve and retry on timeout; single inputs have nothing left to halve.
	if ctx.Err() == nil && len(texts) > 1 && isTimeout(err) {
		mid := len(texts) / 2
		left, lerr := e.EmbedBatch(ctx, texts[:mid])
		if lerr != nil {
			return nil, lerr
		}
		right, rerr := e.EmbedBatch(ctx, texts[mid:])
		if rerr != nil {
			return nil, rerr
		}
		return append(left, right...), nil
	}

	return nil, err
}

// embedOnce performs a single /api/embed call.
func (e *OllamaEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.InferenceTimeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{
		Model: e.config.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embed request: status %d: %s", resp.StatusCode, string(msg))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed response length mismatch: want %d, got %d",
			len(texts), len(result.Embeddings))
	}

	vecs := make([][]float32, len(result.Embeddings))
	for i, v := range result.Embeddings {
		if e.config.Dimensions > 0 && len(v) != e.config.Dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d",
				e.config.Dimensions, len(v))
		}
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

// isTimeout reports deadline-style failures eligible for the halving retry.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	return contextDeadline(err) || containsTimeout(err.Error())
}

func contextDeadline(err error) bool {
	return err == context.DeadlineExceeded
}

func containsTimeout(msg string) bool {
	return bytes.Contains([]byte(msg), []byte("deadline exceeded")) ||
		bytes.Contains([]byte(msg), []byte("timeout"))
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelID returns the model identifier persisted with the index.
func (e *OllamaEmbedder) ModelID() string {
	return e.config.Model
}

// Available probes the server.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet,
		e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close releases connection pool resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

// Verify interface implementation at compile time.
var _ Embedder = (*OllamaEmbedder)(nil)
