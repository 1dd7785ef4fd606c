package storage

import (
	"context"

	"github.com/google/uuid"
)

// Driver persists documents, tenants, and usage records in a storage
// backend. Chunk embeddings live in the vector store, not here; deleting a
// document through the ingestion pipeline cascades to its chunks.
type Driver interface {
	// CreateDocument stores a document. Returns ErrDuplicate when the
	// tenant already has a document with the same content hash.
	CreateDocument(ctx context.Context, doc Document) error

	// GetDocument retrieves a tenant's document by id.
	// Returns ErrNotFound when no such document exists for the tenant.
	GetDocument(ctx context.Context, tenantID, id uuid.UUID) (Document, error)

	// ListDocuments returns a tenant's documents, newest first.
	ListDocuments(ctx context.Context, tenantID uuid.UUID) ([]Document, error)

	// DeleteDocument removes a document row. Returns true if a row was
	// deleted, false when nothing matched.
	DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error)

	// CreateTenant stores a tenant. Returns ErrDuplicate when the API key
	// hash is already in use.
	CreateTenant(ctx context.Context, tenant Tenant) error

	// TenantByAPIKeyHash resolves a tenant from a hashed API key.
	// Returns ErrNotFound for unknown keys.
	TenantByAPIKeyHash(ctx context.Context, hash string) (Tenant, error)

	// RecordUsage appends one usage record.
	RecordUsage(ctx context.Context, record UsageRecord) error

	// TokensUsedToday sums a tenant's recorded tokens since UTC midnight.
	TokensUsedToday(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// Close closes the driver and releases any resources.
	Close() error
}
