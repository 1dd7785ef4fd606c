// Package ingestcmder provides the ingest command for submitting documents
// through the Recall API.
package ingestcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/logger"
)

type ingestCommander struct {
	files     []string
	title     string
	sourceURL string
	async     bool

	apiTarget string
	apiKey    string

	debug  bool
	logger *zap.Logger
}

const ingestLongDesc string = `Ingest documents via the Recall API.

Each file argument becomes one document; with no arguments, content is
read from stdin. The server chunks the content, embeds every chunk, and
stores the chunks for semantic search.

Requires a running Recall server and a tenant API key (--api-key or
client.api_key in config.toml).

Example:
  recall ingest notes.md
  recall ingest docs/*.md --async
  cat report.txt | recall ingest --title "Q3 report"`

const ingestShortDesc string = "Ingest documents"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyClientConfig(cmd, &cmder.apiTarget, &cmder.apiKey)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.files = args

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.title, "title", "t", "", "Document title (defaults to the file name)")
	cmd.Flags().StringVar(&cmder.sourceURL, "source-url", "", "Source URL recorded on the document")
	cmd.Flags().BoolVar(&cmder.async, "async", false, "Queue ingestion instead of waiting for it")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Recall API server URL")
	cmd.Flags().StringVar(&cmder.apiKey, "api-key", "", "Tenant API key")

	return cmd
}

func (c *ingestCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if c.apiKey == "" {
		return fmt.Errorf("an API key is required (--api-key or client.api_key in config)")
	}

	if len(c.files) == 0 {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		return c.ingestOne(ingest.Request{
			Title:     c.title,
			SourceURL: c.sourceURL,
			Content:   string(content),
		})
	}

	for _, file := range c.files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}

		title := c.title
		if title == "" {
			title = filepath.Base(file)
		}

		req := ingest.Request{
			Title:     title,
			SourceURL: c.sourceURL,
			Content:   string(content),
			Metadata:  map[string]any{"source_file": file},
		}
		if err := c.ingestOne(req); err != nil {
			return fmt.Errorf("ingesting %s: %w", file, err)
		}
	}

	return nil
}

func (c *ingestCommander) ingestOne(req ingest.Request) error {
	result, queued, err := IngestAPI(c.apiTarget, c.apiKey, req, c.async)
	if err != nil {
		return err
	}

	if queued {
		fmt.Printf("queued %q\n", req.Title)
		return nil
	}

	fmt.Printf("ingested %q: document %s, %d chunks, %d tokens\n",
		req.Title, result.Document.ID, result.ChunkCount, result.TokenCount)
	return nil
}

// IngestAPI submits one document to the Recall API. Returns queued=true for
// async submissions that were accepted without a result body.
// Exported so other commands (e.g. recall watch) can reuse it.
func IngestAPI(apiTarget, apiKey string, docReq ingest.Request, async bool) (*ingest.Result, bool, error) {
	ingestURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, false, fmt.Errorf("invalid API target URL: %w", err)
	}
	ingestURL.Path = "/v1/documents"
	if async {
		q := ingestURL.Query()
		q.Set("async", "true")
		ingestURL.RawQuery = q.Encode()
	}

	body, err := json.Marshal(docReq)
	if err != nil {
		return nil, false, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, ingestURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("creating ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to connect to Recall API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		var result ingest.Result
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, false, fmt.Errorf("failed to parse ingest response: %w", err)
		}
		return &result, false, nil
	case http.StatusAccepted:
		return nil, true, nil
	default:
		return nil, false, fmt.Errorf("ingest request failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}
}

// applyClientConfig fills api-target and api-key from config.toml for flags
// the user did not set.
func applyClientConfig(cmd *cobra.Command, apiTarget, apiKey *string) error {
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
		*apiTarget = cfg.Client.APITarget
	}
	if !cmd.Flags().Changed("api-key") && *apiKey == "" {
		*apiKey = cfg.Client.APIKey
	}
	return nil
}
