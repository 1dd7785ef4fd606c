package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/utils"
	"github.com/papercomputeco/recall/pkg/vectorstore"
)

var (
	searchToolName    = "search"
	searchDescription = "Search over the tenant's ingested documents using semantic search. Returns the most relevant document chunks for the query text."
)

// previewLen caps the preview text returned per result.
const previewLen = 200

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query text to find relevant document chunks"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	DocumentID string         `json:"document_id"`
	ChunkIndex int            `json:"chunk_index"`
	Score      float64        `json:"score"`
	Preview    string         `json:"preview"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	// Default topK if not specified
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	logger.Debug("MCP search request",
		zap.String("query", input.Query),
		zap.Int("topK", topK),
	)

	results, err := s.config.Pipeline.Search(ctx, s.config.Tenant, input.Query, topK)
	if err != nil {
		logger.Error("failed to search documents", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to search documents: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, result := range results {
		searchResults = append(searchResults, buildSearchResult(result))
	}

	output := SearchOutput{
		Query:   input.Query,
		Results: searchResults,
		Count:   len(searchResults),
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// buildSearchResult converts a similarity result into a SearchResult.
func buildSearchResult(result vectorstore.SimilarityResult) SearchResult {
	return SearchResult{
		DocumentID: result.Chunk.DocumentID.String(),
		ChunkIndex: result.Chunk.ChunkIndex,
		Score:      result.Score,
		Preview:    utils.Truncate(result.Chunk.Content, previewLen),
		Content:    result.Chunk.Content,
		Metadata:   result.Chunk.Metadata,
	}
}
