package embed

import (
	"context"
	"log/slog"
	"time"
)

// FactoryConfig selects and configures the embedding backend.
type FactoryConfig struct {
	// Endpoint is the model server address.
	Endpoint string
	// Model is the embedding model identifier.
	Model string
	// Dimensions is the vector dimension, fixed at index creation.
	Dimensions int
	// BatchSize bounds one model call.
	BatchSize int
	// MaxSeqLength is the truncation length for retried inputs.
	MaxSeqLength int
	// InferenceTimeout bounds a single model call.
	InferenceTimeout time.Duration
}

// NewEmbedder builds the coverage-wrapped embedder for the engine. When the
// model server is unreachable at startup the hashing embedder becomes the
// primary: every chunk is flagged degraded but indexing proceeds.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) *CoverageEmbedder {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 768
	}

	primary := Embedder(NewOllamaEmbedder(OllamaConfig{
		Host:             cfg.Endpoint,
		Model:            cfg.Model,
		Dimensions:       cfg.Dimensions,
		InferenceTimeout: cfg.InferenceTimeout,
	}))

	if !primary.Available(ctx) {
		slog.Warn("embedding model unavailable at startup, running degraded",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("model", cfg.Model),
		)
		_ = primary.Close()
		primary = NewHashingEmbedder(cfg.Dimensions)
	}

	return NewCoverageEmbedder(primary, cfg.MaxSeqLength, cfg.BatchSize)
}
