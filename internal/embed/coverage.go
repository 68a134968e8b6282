package embed

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// CoverageEmbedder wraps a primary embedder and a hashing fallback to
// guarantee the coverage invariant: EmbedBatch returns exactly one vector
// per input, never an absent result. Vectors are unit length, except that
// an input that is blank after sanitization gets the all-zero vector.
//
// Failure handling per input, in order: batch call, per-item retry with
// progressive truncation (full, max sequence length, 512 chars), hashing
// fallback flagged Degraded.
type CoverageEmbedder struct {
	primary  Embedder
	fallback *HashingEmbedder

	// maxSeqLength is the first truncation length for per-item retries.
	maxSeqLength int
	// batchSize bounds one model call.
	batchSize int
}

// NewCoverageEmbedder builds the coverage wrapper. The fallback dimension
// always matches the primary so degraded vectors stay index-compatible.
func NewCoverageEmbedder(primary Embedder, maxSeqLength, batchSize int) *CoverageEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if maxSeqLength <= 0 {
		maxSeqLength = 2048
	}
	return &CoverageEmbedder{
		primary:      primary,
		fallback:     NewHashingEmbedder(primary.Dimensions()),
		maxSeqLength: maxSeqLength,
		batchSize:    batchSize,
	}
}

// EmbedBatch embeds all texts, absorbing every failure mode internally.
// The result has the same length and order as texts.
func (e *CoverageEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	results := make([]Vector, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	sanitized := make([]string, len(texts))
	for i, t := range texts {
		sanitized[i] = Sanitize(t)
	}

	if !e.primary.Available(ctx) {
		slog.Warn("embedding model unavailable, using hashing fallback",
			slog.String("model", e.primary.ModelID()),
			slog.Int("inputs", len(texts)),
		)
		for i, t := range sanitized {
			vec, _ := e.fallback.Embed(ctx, t)
			results[i] = Vector{Values: vec, Degraded: true}
		}
		return results, nil
	}

	for start := 0; start < len(sanitized); start += e.batchSize {
		end := start + e.batchSize
		if end > len(sanitized) {
			end = len(sanitized)
		}
		batch := sanitized[start:end]

		vecs, err := e.primary.EmbedBatch(ctx, batch)
		if err == nil {
			for i, v := range vecs {
				results[start+i] = Vector{Values: v, Degraded: e.DegradedPrimary()}
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		slog.Debug("batch embed failed, retrying items individually",
			slog.Int("batch_start", start),
			slog.String("error", err.Error()),
		)
		for i, t := range batch {
			results[start+i] = e.embedSingle(ctx, t)
		}
	}

	return results, nil
}

// embedSingle retries one input with progressive truncation, ending at the
// hashing fallback.
func (e *CoverageEmbedder) embedSingle(ctx context.Context, text string) Vector {
	attempts := []string{text}
	if len(text) > e.maxSeqLength {
		attempts = append(attempts, text[:e.maxSeqLength])
	}
	if len(text) > MinRetryChars {
		attempts = append(attempts, text[:MinRetryChars])
	}

	for _, attempt := range attempts {
		if ctx.Err() != nil {
			break
		}
		vec, err := e.primary.Embed(ctx, attempt)
		if err == nil {
			return Vector{Values: vec, Degraded: e.DegradedPrimary()}
		}
	}

	vec, _ := e.fallback.Embed(ctx, text)
	return Vector{Values: vec, Degraded: true}
}

// EmbedQuery embeds a single query string, falling back like EmbedBatch.
func (e *CoverageEmbedder) EmbedQuery(ctx context.Context, query string) (Vector, error) {
	vecs, err := e.EmbedBatch(ctx, []string{query})
	if err != nil {
		return Vector{}, err
	}
	return vecs[0], nil
}

// Dimensions returns the embedding dimension.
func (e *CoverageEmbedder) Dimensions() int {
	return e.primary.Dimensions()
}

// ModelID returns the primary model identifier.
func (e *CoverageEmbedder) ModelID() string {
	return e.primary.ModelID()
}

// Available reports whether the primary model is reachable. The wrapper
// itself always produces vectors; this drives the degraded status flag.
func (e *CoverageEmbedder) Available(ctx context.Context) bool {
	return e.primary.Available(ctx)
}

// DegradedPrimary reports whether the primary itself is the hashing
// embedder, i.e. the model was unavailable at startup.
func (e *CoverageEmbedder) DegradedPrimary() bool {
	_, ok := e.primary.(*HashingEmbedder)
	return ok
}

// Close releases both embedders.
func (e *CoverageEmbedder) Close() error {
	err := e.primary.Close()
	if ferr := e.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}

// maxLineLength truncates pathological single lines during sanitization.
const maxLineLength = 2000

// Sanitize removes null bytes and control characters, truncates overlong
// lines, and normalizes whitespace.
func Sanitize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	lineLen := 0
	for _, r := range text {
		switch {
		case r == '\n':
			sb.WriteRune(r)
			lineLen = 0
		case r == '\t':
			sb.WriteRune(' ')
			lineLen++
		case r == 0 || unicode.IsControl(r):
			// dropped
		default:
			if lineLen < maxLineLength {
				sb.WriteRune(r)
				lineLen++
			}
		}
	}

	return strings.TrimSpace(sb.String())
}
