// Package qdrant provides a vector store backed by a Qdrant collection.
// Point IDs are derived deterministically from (document_id, chunk_index)
// so repeat ingests of the same document overwrite in place, and every
// query carries a tenant filter.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	qdrantgo "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/vectorstore"
)

// pointNamespace seeds the deterministic UUIDv5 point IDs.
var pointNamespace = uuid.MustParse("8f0c4b62-1f5a-4f4e-9f0e-2b7a6d1c3e58")

const (
	payloadChunkID    = "chunk_id"
	payloadDocumentID = "document_id"
	payloadTenantID   = "tenant_id"
	payloadChunkIndex = "chunk_index"
	payloadContent    = "content"
	payloadTokenCount = "token_count"
	payloadMetadata   = "metadata"
	payloadCreatedAt  = "created_at"
)

// Store implements vectorstore.Store on a Qdrant collection.
type Store struct {
	client     *qdrantgo.Client
	collection string
	dimension  int
	logger     *zap.Logger
}

// Config holds configuration for the Qdrant store.
type Config struct {
	// Host is the Qdrant gRPC host.
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334 if zero.
	Port int

	// Collection is the collection name chunks are stored in.
	Collection string

	// Dimension is the embedding dimension. Defaults to
	// vectorstore.DefaultDimension if zero.
	Dimension int
}

// New creates a Qdrant store and ensures the collection exists with a
// cosine distance configuration.
func New(ctx context.Context, c Config, logger *zap.Logger) (*Store, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	dimension := c.Dimension
	if dimension == 0 {
		dimension = vectorstore.DefaultDimension
	}
	if dimension < 0 {
		return nil, fmt.Errorf("embedding dimension must be greater than 0, got: %d", dimension)
	}

	client, err := qdrantgo.NewClient(&qdrantgo.Config{
		Host: c.Host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %v", vectorstore.ErrConnection, err)
	}

	s := &Store{
		client:     client,
		collection: c.Collection,
		dimension:  dimension,
		logger:     logger,
	}

	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", c.Host),
		zap.Int("port", port),
		zap.String("collection", c.Collection),
		zap.Int("dimension", dimension),
	)

	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", vectorstore.ErrConnection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrantgo.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrantgo.NewVectorsConfig(&qdrantgo.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrantgo.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", s.collection, err)
	}

	return nil
}

// pointID derives the stable point ID for a (document, index) pair.
func pointID(documentID uuid.UUID, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s:%d", documentID, chunkIndex)).String()
}

// Store validates and upserts a single chunk.
func (s *Store) Store(ctx context.Context, chunk vectorstore.Chunk) error {
	if err := vectorstore.ValidateChunk(chunk, s.dimension); err != nil {
		return err
	}
	return s.upsert(ctx, []vectorstore.Chunk{chunk})
}

// StoreBatch validates every chunk before writing anything, then upserts
// the batch in one request.
func (s *Store) StoreBatch(ctx context.Context, chunks []vectorstore.Chunk) error {
	if err := vectorstore.ValidateBatch(chunks, s.dimension); err != nil {
		return err
	}
	if err := s.upsert(ctx, chunks); err != nil {
		return err
	}

	s.logger.Debug("stored chunk batch",
		zap.Int("count", len(chunks)),
	)

	return nil
}

func (s *Store) upsert(ctx context.Context, chunks []vectorstore.Chunk) error {
	ids := make([]*qdrantgo.PointId, 0, len(chunks))
	for _, chunk := range chunks {
		ids = append(ids, qdrantgo.NewIDUUID(pointID(chunk.DocumentID, chunk.ChunkIndex)))
	}

	// Carry over chunk id and creation time from points being overwritten
	// so re-ingesting a document keeps stable chunk identities.
	existing, err := s.client.Get(ctx, &qdrantgo.GetPoints{
		CollectionName: s.collection,
		Ids:            ids,
		WithPayload:    qdrantgo.NewWithPayload(true),
	})
	if err != nil {
		return fmt.Errorf("fetching existing points: %w", err)
	}

	existingPayloads := make(map[string]map[string]*qdrantgo.Value, len(existing))
	for _, point := range existing {
		if id := point.GetId().GetUuid(); id != "" {
			existingPayloads[id] = point.GetPayload()
		}
	}

	points := make([]*qdrantgo.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		id := pointID(chunk.DocumentID, chunk.ChunkIndex)

		chunkID := chunk.ID.String()
		createdAt := time.Now().UTC().Format(time.RFC3339Nano)
		if payload, ok := existingPayloads[id]; ok {
			if prev := payload[payloadChunkID].GetStringValue(); prev != "" {
				chunkID = prev
			}
			if prev := payload[payloadCreatedAt].GetStringValue(); prev != "" {
				createdAt = prev
			}
		}

		metadata, err := encodeMetadata(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("chunk at index %d: %w", i, err)
		}

		points = append(points, &qdrantgo.PointStruct{
			Id:      qdrantgo.NewIDUUID(id),
			Vectors: qdrantgo.NewVectors(chunk.Embedding...),
			Payload: qdrantgo.NewValueMap(map[string]any{
				payloadChunkID:    chunkID,
				payloadDocumentID: chunk.DocumentID.String(),
				payloadTenantID:   chunk.TenantID.String(),
				payloadChunkIndex: int64(chunk.ChunkIndex),
				payloadContent:    chunk.Content,
				payloadTokenCount: int64(chunk.TokenCount),
				payloadMetadata:   metadata,
				payloadCreatedAt:  createdAt,
			}),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrantgo.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	return nil
}

// Search returns the tenant's topK nearest chunks by cosine similarity.
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

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrantgo.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrantgo.NewQuery(queryEmbedding...),
		Filter: &qdrantgo.Filter{
			Must: []*qdrantgo.Condition{
				qdrantgo.NewMatch(payloadTenantID, tenantID.String()),
			},
		},
		Limit:       &limit,
		WithPayload: qdrantgo.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]vectorstore.SimilarityResult, 0, len(points))
	for _, point := range points {
		chunk, err := s.chunkFromPayload(point.GetPayload())
		if err != nil {
			return nil, err
		}

		result, err := vectorstore.NewSimilarityResult(chunk, vectorstore.ClampScore(float64(point.GetScore())))
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	s.logger.Debug("search completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (s *Store) chunkFromPayload(payload map[string]*qdrantgo.Value) (vectorstore.Chunk, error) {
	chunkIDStr := payload[payloadChunkID].GetStringValue()
	chunkID, err := uuid.Parse(chunkIDStr)
	if err != nil {
		return vectorstore.Chunk{}, fmt.Errorf("parsing chunk id %q: %w", chunkIDStr, err)
	}

	docIDStr := payload[payloadDocumentID].GetStringValue()
	docID, err := uuid.Parse(docIDStr)
	if err != nil {
		return vectorstore.Chunk{}, fmt.Errorf("parsing document id %q: %w", docIDStr, err)
	}

	tenantIDStr := payload[payloadTenantID].GetStringValue()
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return vectorstore.Chunk{}, fmt.Errorf("parsing tenant id %q: %w", tenantIDStr, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, payload[payloadCreatedAt].GetStringValue())
	if err != nil {
		createdAt = time.Time{}
	}

	chunk := vectorstore.Chunk{
		ID:         chunkID,
		DocumentID: docID,
		TenantID:   tenantID,
		ChunkIndex: int(payload[payloadChunkIndex].GetIntegerValue()),
		Content:    payload[payloadContent].GetStringValue(),
		TokenCount: int(payload[payloadTokenCount].GetIntegerValue()),
		Metadata:   s.decodeMetadata(chunkID, payload[payloadMetadata].GetStringValue()),
		CreatedAt:  createdAt,
	}

	return chunk, nil
}

// DeleteByDocumentID removes all points for the document and returns how
// many were deleted.
func (s *Store) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int64, error) {
	filter := &qdrantgo.Filter{
		Must: []*qdrantgo.Condition{
			qdrantgo.NewMatch(payloadDocumentID, documentID.String()),
		},
	}

	// Qdrant's delete response carries no affected count, so count first.
	exact := true
	count, err := s.client.Count(ctx, &qdrantgo.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("counting points for document %s: %w", documentID, err)
	}

	_, err = s.client.Delete(ctx, &qdrantgo.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrantgo.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("deleting points for document %s: %w", documentID, err)
	}

	deleted := int64(count)
	s.logger.Info("deleted chunks for document",
		zap.String("document_id", documentID.String()),
		zap.Int64("count", deleted),
	)

	return deleted, nil
}

// Close shuts down the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func encodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("%w: serializing chunk metadata: %v", vectorstore.ErrValidation, err)
	}
	return string(raw), nil
}

func (s *Store) decodeMetadata(chunkID uuid.UUID, raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		s.logger.Warn("failed to decode chunk metadata",
			zap.String("chunk_id", chunkID.String()),
			zap.Error(err),
		)
		return map[string]any{}
	}
	if metadata == nil {
		return map[string]any{}
	}

	return metadata
}

var _ vectorstore.Store = (*Store)(nil)
