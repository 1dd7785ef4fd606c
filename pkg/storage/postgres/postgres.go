// Package postgres implements the storage.Driver interface on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/storage"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_documents_tenant_hash UNIQUE (tenant_id, content_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents (tenant_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		api_key_hash TEXT NOT NULL UNIQUE,
		token_limit_per_day BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		operation_type TEXT NOT NULL,
		tokens_used INTEGER NOT NULL,
		model_name TEXT NOT NULL DEFAULT '',
		latency_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_tenant_created ON usage_records (tenant_id, created_at)`,
}

// Driver implements storage.Driver on PostgreSQL.
type Driver struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Config holds configuration for the postgres driver.
type Config struct {
	// ConnString is a PostgreSQL connection string or URI.
	ConnString string
}

// New creates a postgres driver, verifies connectivity, and applies the
// schema migrations.
func New(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	if c.ConnString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	pool, err := pgxpool.New(ctx, c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("opening pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("applying storage schema: %w", err)
		}
	}

	logger.Info("postgres storage initialized")

	return &Driver{pool: pool, logger: logger}, nil
}

// CreateDocument stores a document row.
func (d *Driver) CreateDocument(ctx context.Context, doc storage.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("serializing document metadata: %w", err)
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO documents (id, tenant_id, title, source_url, content, content_hash, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)`,
		doc.ID, doc.TenantID, doc.Title, doc.SourceURL, doc.Content,
		doc.ContentHash, metadata, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: document with identical content already exists for tenant %s", storage.ErrDuplicate, doc.TenantID)
		}
		return fmt.Errorf("inserting document: %w", err)
	}

	return nil
}

// GetDocument retrieves a tenant's document by id.
func (d *Driver) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (storage.Document, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, source_url, content, content_hash, metadata, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Document{}, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return storage.Document{}, fmt.Errorf("querying document: %w", err)
	}

	return doc, nil
}

// ListDocuments returns a tenant's documents, newest first.
func (d *Driver) ListDocuments(ctx context.Context, tenantID uuid.UUID) ([]storage.Document, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, tenant_id, title, source_url, content, content_hash, metadata, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []storage.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// DeleteDocument removes a document row.
func (d *Driver) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateTenant stores a tenant row.
func (d *Driver) CreateTenant(ctx context.Context, tenant storage.Tenant) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, api_key_hash, token_limit_per_day, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tenant.ID, tenant.Name, tenant.APIKeyHash, tenant.TokenLimitPerDay,
		tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: api key already in use", storage.ErrDuplicate)
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}

	return nil
}

// TenantByAPIKeyHash resolves a tenant from a hashed API key.
func (d *Driver) TenantByAPIKeyHash(ctx context.Context, hash string) (storage.Tenant, error) {
	var tenant storage.Tenant
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, api_key_hash, token_limit_per_day, created_at, updated_at
		FROM tenants
		WHERE api_key_hash = $1`,
		hash,
	).Scan(&tenant.ID, &tenant.Name, &tenant.APIKeyHash, &tenant.TokenLimitPerDay,
		&tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Tenant{}, fmt.Errorf("%w: unknown api key", storage.ErrNotFound)
	}
	if err != nil {
		return storage.Tenant{}, fmt.Errorf("querying tenant: %w", err)
	}

	return tenant, nil
}

// RecordUsage appends one usage record.
func (d *Driver) RecordUsage(ctx context.Context, record storage.UsageRecord) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO usage_records (id, tenant_id, operation_type, tokens_used, model_name, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.TenantID, record.OperationType, record.TokensUsed,
		record.ModelName, record.LatencyMs, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// TokensUsedToday sums a tenant's recorded tokens since UTC midnight.
func (d *Driver) TokensUsedToday(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var total int64
	err := d.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(tokens_used), 0)
		FROM usage_records
		WHERE tenant_id = $1
		  AND created_at >= date_trunc('day', now() AT TIME ZONE 'UTC') AT TIME ZONE 'UTC'`,
		tenantID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("querying usage: %w", err)
	}
	return total, nil
}

// Close releases the connection pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

func scanDocument(row pgx.Row) (storage.Document, error) {
	var doc storage.Document
	var metadataRaw []byte

	if err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.Title, &doc.SourceURL, &doc.Content,
		&doc.ContentHash, &metadataRaw, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return storage.Document{}, err
	}

	if err := json.Unmarshal(metadataRaw, &doc.Metadata); err != nil || doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ storage.Driver = (*Driver)(nil)
