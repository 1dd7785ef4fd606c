// Package inmemory implements the storage.Driver interface with in-process
// maps. It backs tests and zero-dependency setups.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/storage"
)

// Driver implements storage.Driver in memory.
type Driver struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]storage.Document
	tenants   map[uuid.UUID]storage.Tenant
	usage     []storage.UsageRecord
}

// New creates an in-memory storage driver.
func New() *Driver {
	return &Driver{
		documents: make(map[uuid.UUID]storage.Document),
		tenants:   make(map[uuid.UUID]storage.Tenant),
	}
}

// CreateDocument stores a document.
func (d *Driver) CreateDocument(ctx context.Context, doc storage.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.documents {
		if existing.TenantID == doc.TenantID && existing.ContentHash == doc.ContentHash {
			return fmt.Errorf("%w: document with identical content already exists for tenant %s", storage.ErrDuplicate, doc.TenantID)
		}
	}

	d.documents[doc.ID] = doc
	return nil
}

// GetDocument retrieves a tenant's document by id.
func (d *Driver) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (storage.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.documents[id]
	if !ok || doc.TenantID != tenantID {
		return storage.Document{}, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	return doc, nil
}

// ListDocuments returns a tenant's documents, newest first.
func (d *Driver) ListDocuments(ctx context.Context, tenantID uuid.UUID) ([]storage.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var docs []storage.Document
	for _, doc := range d.documents {
		if doc.TenantID == tenantID {
			docs = append(docs, doc)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	return docs, nil
}

// DeleteDocument removes a document.
func (d *Driver) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.documents[id]; !ok {
		return false, nil
	}
	delete(d.documents, id)
	return true, nil
}

// CreateTenant stores a tenant.
func (d *Driver) CreateTenant(ctx context.Context, tenant storage.Tenant) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.tenants {
		if existing.APIKeyHash == tenant.APIKeyHash {
			return fmt.Errorf("%w: api key already in use", storage.ErrDuplicate)
		}
	}

	d.tenants[tenant.ID] = tenant
	return nil
}

// TenantByAPIKeyHash resolves a tenant from a hashed API key.
func (d *Driver) TenantByAPIKeyHash(ctx context.Context, hash string) (storage.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, tenant := range d.tenants {
		if tenant.APIKeyHash == hash {
			return tenant, nil
		}
	}
	return storage.Tenant{}, fmt.Errorf("%w: unknown api key", storage.ErrNotFound)
}

// RecordUsage appends one usage record.
func (d *Driver) RecordUsage(ctx context.Context, record storage.UsageRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.usage = append(d.usage, record)
	return nil
}

// TokensUsedToday sums a tenant's recorded tokens since UTC midnight.
func (d *Driver) TokensUsedToday(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	var total int64
	for _, record := range d.usage {
		if record.TenantID == tenantID && !record.CreatedAt.Before(midnight) {
			total += int64(record.TokensUsed)
		}
	}
	return total, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
