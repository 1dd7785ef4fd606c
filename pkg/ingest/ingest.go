// Package ingest wires the chunker, embedder, vector store, storage driver,
// and event stream into the document pipeline: ingest, search, delete.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/chunker"
	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/vectorstore"
)

// Request is one document submitted for ingestion.
type Request struct {
	Title     string         `json:"title,omitempty"`
	SourceURL string         `json:"source_url,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Result summarizes a completed ingestion.
type Result struct {
	Document   storage.Document `json:"document"`
	ChunkCount int              `json:"chunk_count"`
	TokenCount int              `json:"token_count"`
	DurationMs int64            `json:"duration_ms"`
}

// DeleteResult summarizes a completed document deletion.
type DeleteResult struct {
	DocumentID    uuid.UUID `json:"document_id"`
	ChunksDeleted int64     `json:"chunks_deleted"`
}

// Config holds the pipeline's collaborators.
type Config struct {
	// Chunker splits document content.
	Chunker *chunker.Chunker

	// Embedder generates text embeddings.
	Embedder embeddings.Embedder

	// Vectors is the chunk vector store.
	Vectors vectorstore.Store

	// Storage persists documents, tenants, and usage records.
	Storage storage.Driver

	// Events receives document lifecycle events. Optional; a nil value
	// disables publishing.
	Events eventstream.Publisher

	// EmbeddingModel names the model recorded in usage and events.
	EmbeddingModel string

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pipeline executes the document lifecycle operations.
type Pipeline struct {
	chunker        *chunker.Chunker
	embedder       embeddings.Embedder
	vectors        vectorstore.Store
	storage        storage.Driver
	events         eventstream.Publisher
	embeddingModel string
	logger         *zap.Logger
}

// New creates a Pipeline, rejecting missing collaborators.
func New(c Config) (*Pipeline, error) {
	if c.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if c.Vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if c.Storage == nil {
		return nil, fmt.Errorf("storage driver is required")
	}

	return &Pipeline{
		chunker:        c.Chunker,
		embedder:       c.Embedder,
		vectors:        c.Vectors,
		storage:        c.Storage,
		events:         c.Events,
		embeddingModel: c.EmbeddingModel,
		logger:         c.Logger,
	}, nil
}

// Ingest persists the document, chunks it, embeds every chunk in one batch,
// and upserts the chunks into the vector store. Usage recording and event
// publishing are best-effort: their failure never fails the ingest.
func (p *Pipeline) Ingest(ctx context.Context, tenant storage.Tenant, req Request) (Result, error) {
	started := time.Now()

	doc := storage.NewDocument(tenant.ID, req.Title, req.SourceURL, req.Content, req.Metadata)

	if err := p.storage.CreateDocument(ctx, doc); err != nil {
		return Result{}, fmt.Errorf("creating document: %w", err)
	}

	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return Result{}, fmt.Errorf("chunking document %s: %w", doc.ID, err)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embedding %d chunks for document %s: %w", len(chunks), doc.ID, err)
	}

	totalTokens := 0
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		totalTokens += chunks[i].TokenCount
	}

	if err := p.vectors.StoreBatch(ctx, chunks); err != nil {
		return Result{}, fmt.Errorf("storing chunks for document %s: %w", doc.ID, err)
	}

	durationMs := time.Since(started).Milliseconds()

	p.recordUsage(ctx, tenant.ID, storage.OperationIngest, totalTokens, durationMs)

	if p.events != nil {
		event := eventstream.NewDocumentIngestedEvent(
			tenant.ID, doc.ID, doc.Title, len(chunks), totalTokens, p.embeddingModel, durationMs,
		)
		if err := p.events.PublishDocumentIngested(ctx, event); err != nil {
			p.logger.Warn("failed to publish ingest event",
				zap.String("document_id", doc.ID.String()),
				zap.Error(err),
			)
		}
	}

	p.logger.Info("document ingested",
		zap.String("document_id", doc.ID.String()),
		zap.String("tenant_id", tenant.ID.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("tokens", totalTokens),
		zap.Int64("duration_ms", durationMs),
	)

	return Result{
		Document:   doc,
		ChunkCount: len(chunks),
		TokenCount: totalTokens,
		DurationMs: durationMs,
	}, nil
}

// Search embeds the query and returns the tenant's topK most similar chunks.
func (p *Pipeline) Search(ctx context.Context, tenant storage.Tenant, query string, topK int) ([]vectorstore.SimilarityResult, error) {
	started := time.Now()

	queryEmbedding, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := p.vectors.Search(ctx, tenant.ID, queryEmbedding, topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	p.recordUsage(ctx, tenant.ID, storage.OperationSearch,
		chunker.EstimateTokens(query), time.Since(started).Milliseconds())

	return results, nil
}

// DeleteDocument removes a tenant's document and cascades to its chunks in
// the vector store. Ownership is checked first so one tenant cannot delete
// another's document by guessing IDs.
func (p *Pipeline) DeleteDocument(ctx context.Context, tenant storage.Tenant, documentID uuid.UUID) (DeleteResult, error) {
	if _, err := p.storage.GetDocument(ctx, tenant.ID, documentID); err != nil {
		return DeleteResult{}, err
	}

	chunksDeleted, err := p.vectors.DeleteByDocumentID(ctx, documentID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("deleting chunks for document %s: %w", documentID, err)
	}

	if _, err := p.storage.DeleteDocument(ctx, documentID); err != nil {
		return DeleteResult{}, fmt.Errorf("deleting document %s: %w", documentID, err)
	}

	if p.events != nil {
		event := eventstream.NewDocumentDeletedEvent(tenant.ID, documentID, chunksDeleted)
		if err := p.events.PublishDocumentDeleted(ctx, event); err != nil {
			p.logger.Warn("failed to publish delete event",
				zap.String("document_id", documentID.String()),
				zap.Error(err),
			)
		}
	}

	p.logger.Info("document deleted",
		zap.String("document_id", documentID.String()),
		zap.String("tenant_id", tenant.ID.String()),
		zap.Int64("chunks_deleted", chunksDeleted),
	)

	return DeleteResult{
		DocumentID:    documentID,
		ChunksDeleted: chunksDeleted,
	}, nil
}

// recordUsage appends a usage row. Errors are logged but not returned to
// avoid failing the main operation on accounting hiccups.
func (p *Pipeline) recordUsage(ctx context.Context, tenantID uuid.UUID, operation string, tokens int, latencyMs int64) {
	record := storage.NewUsageRecord(tenantID, operation, tokens, p.embeddingModel, latencyMs)
	if err := p.storage.RecordUsage(ctx, record); err != nil {
		p.logger.Warn("failed to record usage",
			zap.String("tenant_id", tenantID.String()),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}
