// Package storage defines the document, tenant, and usage records and the
// Driver interface implemented by the postgres, sqlite, and in-memory
// backends. Records are plain data; defaulting happens in the constructor
// functions, not in backend hooks.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Operation types recorded in usage accounting.
const (
	OperationIngest = "ingest"
	OperationSearch = "search"
)

// DefaultTokenLimitPerDay is the daily token quota assigned to new tenants.
const DefaultTokenLimitPerDay int64 = 100000

// Document is a raw text document owned by a tenant. Content is immutable
// once stored; re-ingesting identical content for the same tenant is
// rejected via the (TenantID, ContentHash) uniqueness rule.
type Document struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	Title       string         `json:"title,omitempty"`
	SourceURL   string         `json:"source_url,omitempty"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewDocument builds a Document with a fresh ID, content hash, timestamps,
// and a non-nil metadata map.
func NewDocument(tenantID uuid.UUID, title, sourceURL, content string, metadata map[string]any) Document {
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := time.Now().UTC()
	return Document{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Title:       title,
		SourceURL:   sourceURL,
		Content:     content,
		ContentHash: HashContent(content),
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Tenant is an isolation boundary. Tenants authenticate with an API key;
// only the key's SHA-256 hash is stored.
type Tenant struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	APIKeyHash       string    `json:"-"`
	TokenLimitPerDay int64     `json:"token_limit_per_day"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewTenant builds a Tenant from a name and plaintext API key. A zero
// tokenLimit falls back to DefaultTokenLimitPerDay.
func NewTenant(name, apiKey string, tokenLimit int64) Tenant {
	if tokenLimit <= 0 {
		tokenLimit = DefaultTokenLimitPerDay
	}
	now := time.Now().UTC()
	return Tenant{
		ID:               uuid.New(),
		Name:             name,
		APIKeyHash:       HashAPIKey(apiKey),
		TokenLimitPerDay: tokenLimit,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// UsageRecord is one row of per-tenant token accounting.
type UsageRecord struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	OperationType string    `json:"operation_type"`
	TokensUsed    int       `json:"tokens_used"`
	ModelName     string    `json:"model_name,omitempty"`
	LatencyMs     int64     `json:"latency_ms,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewUsageRecord builds a UsageRecord with a fresh ID and timestamp.
func NewUsageRecord(tenantID uuid.UUID, operationType string, tokensUsed int, modelName string, latencyMs int64) UsageRecord {
	return UsageRecord{
		ID:            uuid.New(),
		TenantID:      tenantID,
		OperationType: operationType,
		TokensUsed:    tokensUsed,
		ModelName:     modelName,
		LatencyMs:     latencyMs,
		CreatedAt:     time.Now().UTC(),
	}
}

// HashAPIKey returns the hex SHA-256 of a plaintext API key.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// HashContent returns the hex SHA-256 of document content, used for
// per-tenant deduplication.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
