// Package embeddings
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when an embedding request fails.
var ErrEmbedding = errors.New("embedding failed")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts into vector embeddings in one
	// request, returning one embedding per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the width of the vectors this embedder produces.
	Dimension() int

	// Close releases any resources held by the embedder.
	Close() error
}
