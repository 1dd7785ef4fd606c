package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentIngested is emitted after a document is chunked,
	// embedded, and stored.
	EventTypeDocumentIngested = "recall.document.ingested"

	// EventTypeDocumentDeleted is emitted after a document and its chunks
	// are removed.
	EventTypeDocumentDeleted = "recall.document.deleted"
)

// DocumentIngestedEvent is a transport-neutral event payload for an
// ingested document.
type DocumentIngestedEvent struct {
	SchemaVersion  int       `json:"schema_version"`
	EventType      string    `json:"event_type"`
	EventID        string    `json:"event_id"`
	EmittedAt      time.Time `json:"emitted_at"`
	TenantID       uuid.UUID `json:"tenant_id"`
	DocumentID     uuid.UUID `json:"document_id"`
	Title          string    `json:"title,omitempty"`
	ChunkCount     int       `json:"chunk_count"`
	TokenCount     int       `json:"token_count"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

// DocumentDeletedEvent is a transport-neutral event payload for a deleted
// document.
type DocumentDeletedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	TenantID      uuid.UUID `json:"tenant_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	ChunksDeleted int64     `json:"chunks_deleted"`
}

// NewDocumentIngestedEvent builds the v1 ingested payload with a fresh
// event ID and timestamp.
func NewDocumentIngestedEvent(tenantID, documentID uuid.UUID, title string, chunkCount, tokenCount int, embeddingModel string, durationMs int64) *DocumentIngestedEvent {
	return &DocumentIngestedEvent{
		SchemaVersion:  SchemaVersionV1,
		EventType:      EventTypeDocumentIngested,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		TenantID:       tenantID,
		DocumentID:     documentID,
		Title:          title,
		ChunkCount:     chunkCount,
		TokenCount:     tokenCount,
		EmbeddingModel: embeddingModel,
		DurationMs:     durationMs,
	}
}

// NewDocumentDeletedEvent builds the v1 deleted payload with a fresh event
// ID and timestamp.
func NewDocumentDeletedEvent(tenantID, documentID uuid.UUID, chunksDeleted int64) *DocumentDeletedEvent {
	return &DocumentDeletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDocumentDeleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		TenantID:      tenantID,
		DocumentID:    documentID,
		ChunksDeleted: chunksDeleted,
	}
}
