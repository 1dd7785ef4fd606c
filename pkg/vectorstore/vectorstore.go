// Package vectorstore defines the chunk data model and the tenant-scoped
// vector store contract implemented by the pgvector, sqlite-vec, qdrant,
// and in-memory backends.
package vectorstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultDimension is the default embedding dimension.
	DefaultDimension = 768

	// MinTopK and MaxTopK bound the number of results a search may request.
	MinTopK = 1
	MaxTopK = 100
)

// Chunk is a bounded retrievable unit of document text with an attached
// embedding. Chunks are produced by the chunker with embeddings unset; the
// embedding is attached before storage.
type Chunk struct {
	// ID uniquely identifies the chunk. Assigned at chunking time and
	// preserved across upserts of the same (DocumentID, ChunkIndex) key.
	ID uuid.UUID `json:"id"`

	// DocumentID is the parent document's identifier.
	DocumentID uuid.UUID `json:"document_id"`

	// TenantID scopes the chunk to a single tenant.
	TenantID uuid.UUID `json:"tenant_id"`

	// ChunkIndex is the zero-based position among the chunks of one
	// document, unique per (DocumentID, ChunkIndex).
	ChunkIndex int `json:"chunk_index"`

	// Content is the chunk text, never empty or purely whitespace.
	Content string `json:"content"`

	// TokenCount is the heuristic token estimate for Content.
	TokenCount int `json:"token_count"`

	// Embedding is the vector representation of Content. Nil until the
	// embedding provider attaches it; stored length must equal the
	// store's configured dimension.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata is an opaque key-value map, defaults to empty.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is set on first insert and preserved across upserts.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SimilarityResult pairs a chunk with its similarity score.
// Scores are always within [0, 1]: 1 - cosine distance, clamped.
type SimilarityResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// NewSimilarityResult builds a SimilarityResult, enforcing the score range
// invariant at construction time.
func NewSimilarityResult(chunk Chunk, score float64) (SimilarityResult, error) {
	if score < 0.0 || score > 1.0 {
		return SimilarityResult{}, newValidationError("score must be between 0.0 and 1.0, got: %v", score)
	}
	return SimilarityResult{Chunk: chunk, Score: score}, nil
}

// Store persists chunks with embeddings and answers tenant-scoped
// similarity queries.
type Store interface {
	// Store validates and upserts a single chunk. The upsert key is
	// (DocumentID, ChunkIndex): a conflicting write replaces content,
	// token count, embedding, and metadata but preserves the original
	// chunk ID and creation time.
	Store(ctx context.Context, chunk Chunk) error

	// StoreBatch validates every chunk before writing anything; on
	// validation failure no partial write occurs and the error names the
	// failing index. Writes are applied as a unit where the backend
	// supports transactions.
	StoreBatch(ctx context.Context, chunks []Chunk) error

	// Search returns up to topK chunks belonging to the tenant, nearest
	// first by cosine distance, restricted to chunks with a stored
	// embedding. topK must be within [MinTopK, MaxTopK] and the query
	// embedding must match the configured dimension.
	Search(ctx context.Context, tenantID uuid.UUID, queryEmbedding []float32, topK int) ([]SimilarityResult, error)

	// DeleteByDocumentID removes all chunks for the document and returns
	// the number removed. Zero matches is not an error.
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// ClampScore absorbs floating-point overshoot at the [0, 1] boundaries.
func ClampScore(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
