package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex using the coder/hnsw pure-Go HNSW
// implementation.
type HNSWIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	dimensions int
	modelID    string

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// HNSWHeader is the sidecar carrying id mappings and the
// dimension-and-version header persisted next to the graph file.
type HNSWHeader struct {
	SchemaVersion int
	Dimensions    int
	ModelID       string
	IDMap         map[string]uint64
	NextKey       uint64
}

// NewHNSWIndex creates an empty HNSW vector index with a fixed dimension.
func NewHNSWIndex(dimensions int, modelID string) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimensions)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:      graph,
		dimensions: dimensions,
		modelID:    modelID,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
	}, nil
}

// OpenHNSWIndex loads a persisted index. A missing file yields a fresh
// index; a dimension or model mismatch returns ErrDimensionMismatch so the
// caller can drop and re-embed.
func OpenHNSWIndex(path string, dimensions int, modelID string) (*HNSWIndex, error) {
	idx, err := NewHNSWIndex(dimensions, modelID)
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return idx, nil
	}

	if err := idx.load(path); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add inserts vectors with their IDs. Existing IDs are lazily replaced:
// the old graph node is orphaned rather than deleted, which sidesteps
// delete instability in the underlying graph.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.dimensions {
			return ErrDimensionMismatch{Expected: s.dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest neighbors by cosine similarity.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != s.dimensions {
		return nil, ErrDimensionMismatch{Expected: s.dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Overfetch to compensate for orphaned nodes skipped below.
	nodes := s.graph.Search(normalized, k+len(s.keyMap)/8+1)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}

		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ID:    id,
			Score: 1.0 - distance/2.0,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Remove deletes vectors by ID via lazy deletion.
func (s *HNSWIndex) Remove(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Contains checks if an ID exists.
func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// AllIDs returns all vector IDs, for consistency checks.
func (s *HNSWIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the index dimension.
func (s *HNSWIndex) Dimensions() int {
	return s.dimensions
}

// Persist writes the graph and its header sidecar atomically.
func (s *HNSWIndex) Persist(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create vector index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close vector index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename vector index file: %w", err)
	}

	return s.saveHeader(path + ".meta")
}

// saveHeader writes the gob sidecar.
func (s *HNSWIndex) saveHeader(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create header file: %w", err)
	}

	header := HNSWHeader{
		SchemaVersion: CurrentSchemaVersion,
		Dimensions:    s.dimensions,
		ModelID:       s.modelID,
		IDMap:         s.idMap,
		NextKey:       s.nextKey,
	}
	if err := gob.NewEncoder(file).Encode(header); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode header: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close header file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// load reads the header sidecar and graph from disk.
func (s *HNSWIndex) load(path string) error {
	header, err := ReadHNSWHeader(path)
	if err != nil {
		return err
	}

	if header.Dimensions != s.dimensions {
		return ErrDimensionMismatch{Expected: s.dimensions, Got: header.Dimensions}
	}
	if header.ModelID != s.modelID {
		return fmt.Errorf("embedding model changed from %q to %q: %w",
			header.ModelID, s.modelID,
			ErrDimensionMismatch{Expected: s.dimensions, Got: header.Dimensions})
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector index file: %w", err)
	}
	defer file.Close()

	// bufio because graph import requires io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.idMap = header.IDMap
	s.nextKey = header.NextKey
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// ReadHNSWHeader reads the sidecar header for a persisted index. A missing
// sidecar returns a zero header with no error.
func ReadHNSWHeader(vectorPath string) (*HNSWHeader, error) {
	file, err := os.Open(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return &HNSWHeader{}, nil
		}
		return nil, fmt.Errorf("open vector header: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close vector header file", slog.String("error", err.Error()))
		}
	}()

	var header HNSWHeader
	if err := gob.NewDecoder(file).Decode(&header); err != nil {
		return nil, fmt.Errorf("decode vector header: %w", err)
	}
	return &header, nil
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// Verify interface implementation at compile time.
var _ VectorIndex = (*HNSWIndex)(nil)

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
