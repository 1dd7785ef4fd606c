// Package servecmder provides the serve command for running the Recall API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/api/mcp"
	"github.com/papercomputeco/recall/pkg/chunker"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/recall/pkg/embeddings/utils"
	eventstreamutils "github.com/papercomputeco/recall/pkg/eventstream/utils"
	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/ingest/worker"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/storage"
	storageutils "github.com/papercomputeco/recall/pkg/storage/utils"
	"github.com/papercomputeco/recall/pkg/vectorstore"
	vectorstoreutils "github.com/papercomputeco/recall/pkg/vectorstore/utils"
)

type ServeCommander struct {
	listen       string
	mcpTenantKey string
	debug        bool
	logger       *zap.Logger
}

const serveLongDesc string = `Run the Recall API server.

The server exposes the document API (/v1/documents, /v1/search) and,
when --mcp-tenant is given, an MCP endpoint at /mcp whose tools are
pinned to that tenant.

Configuration is resolved from flags, RECALL_* environment variables,
and config.toml in the .recall/ directory, in that order.`

const serveShortDesc string = "Run the Recall API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd, configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for API server to listen on")
	cmd.Flags().StringVar(&cmder.mcpTenantKey, "mcp-tenant", "", "API key of the tenant the MCP endpoint serves")

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command, configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		_ = v.BindPFlag("api.listen", f)
	}

	ctx := context.Background()

	storer, err := c.newStorageDriver(ctx, v, configDir)
	if err != nil {
		return err
	}
	defer storer.Close()

	vectors, err := c.newVectorStore(ctx, v, configDir)
	if err != nil {
		return err
	}
	defer vectors.Close()

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		Dimension:    int(v.GetUint("embedding.dimensions")),
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	chk, err := chunker.New(chunker.Config{
		ChunkSize:    int(v.GetUint("chunking.size")),
		ChunkOverlap: int(v.GetUint("chunking.overlap")),
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: v.GetString("eventstream.provider"),
		Brokers:      splitBrokers(v.GetString("eventstream.brokers")),
		Topic:        v.GetString("eventstream.topic"),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	pipeline, err := ingest.New(ingest.Config{
		Chunker:        chk,
		Embedder:       embedder,
		Vectors:        vectors,
		Storage:        storer,
		Events:         publisher,
		EmbeddingModel: v.GetString("embedding.model"),
		Logger:         c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pipeline: %w", err)
	}

	pool, err := worker.NewPool(&worker.Config{
		Ingestor: pipeline,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr: v.GetString("api.listen"),
	}, pipeline, storer, pool, c.logger)

	if c.mcpTenantKey != "" {
		if err := c.mountMCP(ctx, apiServer, pipeline, storer); err != nil {
			return err
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		pool.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		if err := apiServer.Shutdown(); err != nil {
			c.logger.Warn("API server shutdown failed", zap.Error(err))
		}
		// Drain queued ingests after the HTTP server has stopped.
		pool.Close()
		return nil
	}
}

func (c *ServeCommander) newStorageDriver(ctx context.Context, v *viper.Viper, configDir string) (storage.Driver, error) {
	provider := v.GetString("storage.provider")

	target := v.GetString("storage.target")
	if target == "" && provider == "sqlite" {
		path, err := defaultDBPath(configDir, "recall.db")
		if err != nil {
			return nil, err
		}
		target = path
	}

	storer, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		ProviderType: provider,
		Target:       target,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage driver: %w", err)
	}

	return storer, nil
}

func (c *ServeCommander) newVectorStore(ctx context.Context, v *viper.Viper, configDir string) (vectorstore.Store, error) {
	provider := v.GetString("vector_store.provider")

	target := v.GetString("vector_store.target")
	if target == "" && provider == "sqlite" {
		path, err := defaultDBPath(configDir, "vectors.db")
		if err != nil {
			return nil, err
		}
		target = path
	}

	vectors, err := vectorstoreutils.NewStore(ctx, &vectorstoreutils.NewStoreOpts{
		ProviderType: provider,
		Target:       target,
		Collection:   v.GetString("vector_store.collection"),
		QdrantPort:   int(v.GetUint("vector_store.qdrant_port")),
		Dimension:    int(v.GetUint("embedding.dimensions")),
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	return vectors, nil
}

// mountMCP resolves the MCP tenant and mounts the streamable HTTP handler
// on the fiber app at /mcp.
func (c *ServeCommander) mountMCP(ctx context.Context, apiServer *api.Server, pipeline *ingest.Pipeline, storer storage.Driver) error {
	tenant, err := storer.TenantByAPIKeyHash(ctx, storage.HashAPIKey(c.mcpTenantKey))
	if err != nil {
		return fmt.Errorf("resolving MCP tenant: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Pipeline: pipeline,
		Tenant:   tenant,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer.App().All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	c.logger.Info("MCP endpoint mounted",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("path", "/mcp"),
	)

	return nil
}

// defaultDBPath resolves a database file inside the .recall/ directory.
func defaultDBPath(configDir, file string) (string, error) {
	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving data dir: %w", err)
	}
	return filepath.Join(target, file), nil
}

func splitBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}

	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
