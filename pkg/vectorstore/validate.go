package vectorstore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ValidateChunk checks every field a backend relies on before writing.
// The chunk must carry an id, parent document id, tenant id, a non-negative
// index, non-blank content, a non-negative token count, and an embedding of
// exactly the given dimension.
func ValidateChunk(chunk Chunk, dimension int) error {
	if chunk.ID == uuid.Nil {
		return newValidationError("chunk id cannot be empty, caller must set it before storing")
	}
	if chunk.DocumentID == uuid.Nil {
		return newValidationError("chunk documentId cannot be empty")
	}
	if chunk.TenantID == uuid.Nil {
		return newValidationError("chunk tenantId cannot be empty")
	}
	if chunk.ChunkIndex < 0 {
		return newValidationError("chunk chunkIndex must be non-negative, got: %d", chunk.ChunkIndex)
	}
	if strings.TrimSpace(chunk.Content) == "" {
		return newValidationError("chunk content cannot be empty or blank")
	}
	if chunk.TokenCount < 0 {
		return newValidationError("chunk tokenCount must be a non-negative integer, got: %d", chunk.TokenCount)
	}
	return ValidateEmbedding(chunk.Embedding, dimension)
}

// ValidateBatch validates every chunk up front so that a failing batch
// writes nothing. The returned error names the index of the first failing
// chunk.
func ValidateBatch(chunks []Chunk, dimension int) error {
	if len(chunks) == 0 {
		return newValidationError("chunks cannot be empty")
	}
	for i, chunk := range chunks {
		if err := ValidateChunk(chunk, dimension); err != nil {
			return fmt.Errorf("chunk at index %d failed validation: %w", i, err)
		}
	}
	return nil
}

// ValidateEmbedding checks that an embedding is present and of exactly the
// configured dimension.
func ValidateEmbedding(embedding []float32, dimension int) error {
	if len(embedding) == 0 {
		return newValidationError("embedding cannot be empty")
	}
	if len(embedding) != dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimension, dimension, len(embedding))
	}
	return nil
}

// ValidateTopK enforces the [MinTopK, MaxTopK] bound on search requests.
func ValidateTopK(topK int) error {
	if topK < MinTopK || topK > MaxTopK {
		return newValidationError("topK must be between %d and %d, got: %d", MinTopK, MaxTopK, topK)
	}
	return nil
}
