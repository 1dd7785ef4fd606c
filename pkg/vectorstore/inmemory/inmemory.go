// Package inmemory provides a reference vector store backed by an exact
// cosine scan over an in-process map. It is used by tests and
// zero-dependency setups.
package inmemory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/vectorstore"
)

// Store implements vectorstore.Store with exact cosine similarity.
type Store struct {
	mu        sync.RWMutex
	rows      map[string]vectorstore.Chunk
	dimension int
	logger    *zap.Logger
}

// Config holds configuration for the in-memory store.
type Config struct {
	// Dimension is the required embedding dimension.
	Dimension int
}

// New creates an in-memory vector store.
func New(c Config, logger *zap.Logger) (*Store, error) {
	if c.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be greater than 0, got: %d", c.Dimension)
	}

	return &Store{
		rows:      make(map[string]vectorstore.Chunk),
		dimension: c.Dimension,
		logger:    logger,
	}, nil
}

// rowKey is the upsert key: one row per (documentId, chunkIndex).
func rowKey(documentID uuid.UUID, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", documentID, chunkIndex)
}

// Store validates and upserts a single chunk.
func (s *Store) Store(ctx context.Context, chunk vectorstore.Chunk) error {
	if err := vectorstore.ValidateChunk(chunk, s.dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(chunk)

	return nil
}

// StoreBatch validates every chunk before writing anything, then applies
// the batch as a unit under one lock.
func (s *Store) StoreBatch(ctx context.Context, chunks []vectorstore.Chunk) error {
	if err := vectorstore.ValidateBatch(chunks, s.dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		s.upsertLocked(chunk)
	}

	s.logger.Debug("stored chunk batch",
		zap.Int("count", len(chunks)),
	)

	return nil
}

// upsertLocked replaces content, token count, embedding, and metadata while
// preserving the original chunk's id and creation time.
func (s *Store) upsertLocked(chunk vectorstore.Chunk) {
	key := rowKey(chunk.DocumentID, chunk.ChunkIndex)

	stored := chunk
	stored.Embedding = append([]float32(nil), chunk.Embedding...)
	if stored.Metadata == nil {
		stored.Metadata = map[string]any{}
	}
	stored.CreatedAt = time.Now().UTC()

	if existing, ok := s.rows[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	}

	s.rows[key] = stored
}

// Search scans the tenant's chunks and returns the topK nearest by cosine
// distance.
func (s *Store) Search(ctx context.Context, tenantID uuid.UUID, queryEmbedding []float32, topK int) ([]vectorstore.SimilarityResult, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant id cannot be empty", vectorstore.ErrValidation)
	}
	if err := vectorstore.ValidateEmbedding(queryEmbedding, s.dimension); err != nil {
		return nil, err
	}
	if err := vectorstore.ValidateTopK(topK); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]vectorstore.SimilarityResult, 0, topK)
	for _, chunk := range s.rows {
		if chunk.TenantID != tenantID || len(chunk.Embedding) == 0 {
			continue
		}

		score := vectorstore.ClampScore(1.0 - cosineDistance(queryEmbedding, chunk.Embedding))
		result, err := vectorstore.NewSimilarityResult(chunk, score)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// DeleteByDocumentID removes all chunks for the document.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, chunk := range s.rows {
		if chunk.DocumentID == documentID {
			delete(s.rows, key)
			deleted++
		}
	}

	s.logger.Debug("deleted chunks for document",
		zap.String("document_id", documentID.String()),
		zap.Int64("count", deleted),
	)

	return deleted, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	return nil
}

// cosineDistance computes 1 - cosine similarity. Degenerate zero-norm
// vectors are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 1.0
	}

	return 1.0 - dot/denom
}

var _ vectorstore.Store = (*Store)(nil)
