package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/vectorstore"
)

// DefaultTopK is the result count used when top_k is not given.
const DefaultTopK = 5

// handleSearchEndpoint handles GET /v1/search requests.
// Query parameters:
//   - query (required): the search query text
//   - top_k (optional, default 5): number of results to return, 1..100
func (s *Server) handleSearchEndpoint(c *fiber.Ctx) error {
	tenant := tenantFromCtx(c)

	if err := s.checkQuota(c, tenant); err != nil {
		return err
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query parameter is required",
		})
	}

	topK := DefaultTopK
	if topKStr := c.Query("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil || parsed < vectorstore.MinTopK || parsed > vectorstore.MaxTopK {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "top_k must be an integer between 1 and 100",
			})
		}
		topK = parsed
	}

	results, err := s.pipeline.Search(c.Context(), tenant, query, topK)
	if err != nil {
		s.logger.Error("search failed",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "search failed",
		})
	}

	return c.JSON(SearchResponse{
		Query:   query,
		Count:   len(results),
		Results: toSearchResults(results),
	})
}
