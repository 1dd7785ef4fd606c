// Package sqlite implements the storage.Driver interface on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/storage"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (tenant_id, content_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents (tenant_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		api_key_hash TEXT NOT NULL UNIQUE,
		token_limit_per_day INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		operation_type TEXT NOT NULL,
		tokens_used INTEGER NOT NULL,
		model_name TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_tenant_created ON usage_records (tenant_id, created_at)`,
}

// Driver implements storage.Driver on SQLite.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the sqlite driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// New creates a sqlite driver and applies the schema migrations.
func New(c Config, logger *zap.Logger) (*Driver, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// the schema survives.
	if c.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying storage schema: %w", err)
		}
	}

	logger.Info("sqlite storage initialized",
		zap.String("db_path", c.DBPath),
	)

	return &Driver{db: db, logger: logger}, nil
}

// CreateDocument stores a document row.
func (d *Driver) CreateDocument(ctx context.Context, doc storage.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("serializing document metadata: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, title, source_url, content, content_hash, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID.String(), doc.TenantID.String(), doc.Title, doc.SourceURL, doc.Content,
		doc.ContentHash, string(metadata), formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt),
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
	row := d.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, source_url, content, content_hash, metadata, created_at, updated_at
		FROM documents
		WHERE tenant_id = ? AND id = ?`,
		tenantID.String(), id.String(),
	)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Document{}, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return storage.Document{}, fmt.Errorf("querying document: %w", err)
	}

	return doc, nil
}

// ListDocuments returns a tenant's documents, newest first.
func (d *Driver) ListDocuments(ctx context.Context, tenantID uuid.UUID) ([]storage.Document, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, source_url, content, content_hash, metadata, created_at, updated_at
		FROM documents
		WHERE tenant_id = ?
		ORDER BY created_at DESC`,
		tenantID.String(),
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
	result, err := d.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return affected > 0, nil
}

// CreateTenant stores a tenant row.
func (d *Driver) CreateTenant(ctx context.Context, tenant storage.Tenant) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, api_key_hash, token_limit_per_day, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tenant.ID.String(), tenant.Name, tenant.APIKeyHash, tenant.TokenLimitPerDay,
		formatTime(tenant.CreatedAt), formatTime(tenant.UpdatedAt),
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
	var idStr, createdStr, updatedStr string
	var tenant storage.Tenant

	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, token_limit_per_day, created_at, updated_at
		FROM tenants
		WHERE api_key_hash = ?`,
		hash,
	).Scan(&idStr, &tenant.Name, &tenant.APIKeyHash, &tenant.TokenLimitPerDay, &createdStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Tenant{}, fmt.Errorf("%w: unknown api key", storage.ErrNotFound)
	}
	if err != nil {
		return storage.Tenant{}, fmt.Errorf("querying tenant: %w", err)
	}

	tenant.ID, err = uuid.Parse(idStr)
	if err != nil {
		return storage.Tenant{}, fmt.Errorf("parsing tenant id %q: %w", idStr, err)
	}
	tenant.CreatedAt = parseTime(createdStr)
	tenant.UpdatedAt = parseTime(updatedStr)

	return tenant, nil
}

// RecordUsage appends one usage record.
func (d *Driver) RecordUsage(ctx context.Context, record storage.UsageRecord) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, tenant_id, operation_type, tokens_used, model_name, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(), record.TenantID.String(), record.OperationType,
		record.TokensUsed, record.ModelName, record.LatencyMs, formatTime(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// TokensUsedToday sums a tenant's recorded tokens since UTC midnight.
// Timestamps are stored RFC 3339 in UTC, so lexicographic comparison works.
func (d *Driver) TokensUsedToday(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	var total int64
	err := d.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(tokens_used), 0)
		FROM usage_records
		WHERE tenant_id = ? AND created_at >= ?`,
		tenantID.String(), formatTime(midnight),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("querying usage: %w", err)
	}
	return total, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (storage.Document, error) {
	var doc storage.Document
	var idStr, tenantStr, metadataRaw, createdStr, updatedStr string

	if err := row.Scan(
		&idStr, &tenantStr, &doc.Title, &doc.SourceURL, &doc.Content,
		&doc.ContentHash, &metadataRaw, &createdStr, &updatedStr,
	); err != nil {
		return storage.Document{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return storage.Document{}, fmt.Errorf("parsing document id %q: %w", idStr, err)
	}
	tenantID, err := uuid.Parse(tenantStr)
	if err != nil {
		return storage.Document{}, fmt.Errorf("parsing tenant id %q: %w", tenantStr, err)
	}

	doc.ID = id
	doc.TenantID = tenantID
	doc.CreatedAt = parseTime(createdStr)
	doc.UpdatedAt = parseTime(updatedStr)

	if err := json.Unmarshal([]byte(metadataRaw), &doc.Metadata); err != nil || doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	return doc, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

var _ storage.Driver = (*Driver)(nil)
