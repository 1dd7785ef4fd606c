package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/ingest/worker"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/vectorstore"
)

// tenantLocalKey is the fiber locals key the auth middleware stores the
// resolved tenant under.
const tenantLocalKey = "recall.tenant"

// requireTenant resolves the tenant from the X-API-Key header. Unknown or
// missing keys get 401; the plaintext key is never stored or logged.
func (s *Server) requireTenant(c *fiber.Ctx) error {
	apiKey := c.Get("X-API-Key")
	if apiKey == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "X-API-Key header required"})
	}

	tenant, err := s.storer.TenantByAPIKeyHash(c.Context(), storage.HashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "invalid API key"})
		}
		s.logger.Error("tenant lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "tenant lookup failed"})
	}

	c.Locals(tenantLocalKey, tenant)
	return c.Next()
}

// tenantFromCtx returns the tenant stored by requireTenant.
func tenantFromCtx(c *fiber.Ctx) storage.Tenant {
	tenant, _ := c.Locals(tenantLocalKey).(storage.Tenant)
	return tenant
}

// checkQuota rejects the request with 429 when the tenant has exhausted its
// daily token budget.
func (s *Server) checkQuota(c *fiber.Ctx, tenant storage.Tenant) error {
	used, err := s.storer.TokensUsedToday(c.Context(), tenant.ID)
	if err != nil {
		s.logger.Error("usage lookup failed",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "usage lookup failed"})
	}

	if used >= tenant.TokenLimitPerDay {
		return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{Error: "daily token limit exceeded"})
	}

	return nil
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleCreateDocument handles POST /v1/documents requests.
// With ?async=true and a configured worker pool, the document is queued and
// 202 returned immediately; otherwise ingestion runs inline.
func (s *Server) handleCreateDocument(c *fiber.Ctx) error {
	tenant := tenantFromCtx(c)

	if err := s.checkQuota(c, tenant); err != nil {
		return err
	}

	var req ingest.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	if c.QueryBool("async") && s.pool != nil {
		if !s.pool.Enqueue(worker.Job{Tenant: tenant, Request: req}) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "ingest queue full"})
		}
		return c.Status(fiber.StatusAccepted).JSON(map[string]any{"status": "queued"})
	}

	result, err := s.pipeline.Ingest(c.Context(), tenant, req)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "document with identical content already exists"})
		}
		s.logger.Error("ingest failed",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "ingest failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// handleListDocuments handles GET /v1/documents requests.
func (s *Server) handleListDocuments(c *fiber.Ctx) error {
	tenant := tenantFromCtx(c)

	docs, err := s.storer.ListDocuments(c.Context(), tenant.ID)
	if err != nil {
		s.logger.Error("listing documents failed",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list documents"})
	}

	if docs == nil {
		docs = []storage.Document{}
	}

	return c.JSON(map[string]any{
		"count":     len(docs),
		"documents": docs,
	})
}

// handleGetDocument handles GET /v1/documents/:id requests.
func (s *Server) handleGetDocument(c *fiber.Ctx) error {
	tenant := tenantFromCtx(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid document id"})
	}

	doc, err := s.storer.GetDocument(c.Context(), tenant.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "document not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get document"})
	}

	return c.JSON(doc)
}

// handleDeleteDocument handles DELETE /v1/documents/:id requests, cascading
// to the document's chunks in the vector store.
func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	tenant := tenantFromCtx(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid document id"})
	}

	result, err := s.pipeline.DeleteDocument(c.Context(), tenant, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "document not found"})
		}
		s.logger.Error("delete failed",
			zap.String("document_id", id.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "delete failed"})
	}

	return c.JSON(result)
}

// SearchResult is the wire shape of one search hit.
type SearchResult struct {
	ChunkID    uuid.UUID      `json:"chunk_id"`
	DocumentID uuid.UUID      `json:"document_id"`
	ChunkIndex int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Score      float64        `json:"score"`
}

// SearchResponse is the wire shape of a /v1/search response.
type SearchResponse struct {
	Query   string         `json:"query"`
	Count   int            `json:"count"`
	Results []SearchResult `json:"results"`
}

func toSearchResults(results []vectorstore.SimilarityResult) []SearchResult {
	views := make([]SearchResult, len(results))
	for i, r := range results {
		views[i] = SearchResult{
			ChunkID:    r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			ChunkIndex: r.Chunk.ChunkIndex,
			Content:    r.Chunk.Content,
			Metadata:   r.Chunk.Metadata,
			Score:      r.Score,
		}
	}
	return views
}
