// Package searchcmder provides the search command for semantic search over
// ingested documents.
package searchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/logger"
)

type searchCommander struct {
	query    string
	topK     int
	jsonMode bool

	apiTarget string
	apiKey    string

	debug  bool
	logger *zap.Logger
}

const searchLongDesc string = `Search ingested documents via the Recall API.

Returns the most relevant document chunks for the query text, scored by
cosine similarity in [0, 1]. Requires a running Recall server and a
tenant API key (--api-key or client.api_key in config.toml).

Example:
  recall search "how is authentication configured"
  recall search "error handling" --top 10
  recall search "quarterly results" --json | jq .results`

const searchShortDesc string = "Search ingested documents"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			if !cmd.Flags().Changed("api-key") && cmder.apiKey == "" {
				cmder.apiKey = cfg.Client.APIKey
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 5, "Number of results to return")
	cmd.Flags().BoolVar(&cmder.jsonMode, "json", false, "Output raw JSON")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Recall API server URL")
	cmd.Flags().StringVar(&cmder.apiKey, "api-key", "", "Tenant API key")

	return cmd
}

func (c *searchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if c.apiKey == "" {
		return fmt.Errorf("an API key is required (--api-key or client.api_key in config)")
	}

	output, err := SearchAPI(c.apiTarget, c.apiKey, c.query, c.topK)
	if err != nil {
		return err
	}

	if c.jsonMode {
		raw, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}
		fmt.Println(string(raw))
		return nil
	}

	if output.Count == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("\nSearch results for %q:\n\n", output.Query)
	for i, result := range output.Results {
		c.printResult(i+1, result)
	}

	return nil
}

func (c *searchCommander) printResult(rank int, result api.SearchResult) {
	preview := strings.ReplaceAll(result.Content, "\n", " ")
	if len(preview) > 120 {
		preview = preview[:117] + "..."
	}

	fmt.Printf("  #%d  score: %.4f  document: %s  chunk: %d\n",
		rank, result.Score, result.DocumentID, result.ChunkIndex)
	fmt.Printf("      %s\n\n", preview)
}

// SearchAPI calls the recall search API and returns the parsed output.
// Exported so other commands can reuse it.
func SearchAPI(apiTarget, apiKey, query string, topK int) (*api.SearchResponse, error) {
	searchURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	searchURL.Path = "/v1/search"
	q := searchURL.Query()
	q.Set("query", query)
	q.Set("top_k", strconv.Itoa(topK))
	searchURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Recall API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var output api.SearchResponse
	if err := json.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return &output, nil
}
