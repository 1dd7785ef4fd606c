// Package watchcmder provides the watch command that ingests files from a
// directory as they change.
package watchcmder

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ingestcmder "github.com/papercomputeco/recall/cmd/recall/ingest"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/logger"
)

// debounceWindow coalesces the write bursts editors produce when saving.
const debounceWindow = 500 * time.Millisecond

type watchCommander struct {
	dir        string
	extensions []string

	apiTarget string
	apiKey    string

	debug  bool
	logger *zap.Logger
}

const watchLongDesc string = `Watch a directory and ingest files as they are created or modified.

Each matching file is submitted to the Recall API asynchronously. Rapid
write sequences to the same file are debounced so one save produces one
ingest.

Example:
  recall watch ./docs
  recall watch ./notes --ext .md,.txt`

const watchShortDesc string = "Watch a directory and ingest changed files"

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}
	var extList string

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: watchShortDesc,
		Long:  watchLongDesc,
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
			cmder.dir = args[0]

			for _, ext := range strings.Split(extList, ",") {
				if trimmed := strings.TrimSpace(ext); trimmed != "" {
					cmder.extensions = append(cmder.extensions, trimmed)
				}
			}

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(&extList, "ext", ".md,.txt", "Comma-separated file extensions to ingest")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Recall API server URL")
	cmd.Flags().StringVar(&cmder.apiKey, "api-key", "", "Tenant API key")

	return cmd
}

func (c *watchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if c.apiKey == "" {
		return fmt.Errorf("an API key is required (--api-key or client.api_key in config)")
	}

	info, err := os.Stat(c.dir)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch target %s is not a directory", c.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watching %s: %w", c.dir, err)
	}

	c.logger.Info("watching directory",
		zap.String("dir", c.dir),
		zap.Strings("extensions", c.extensions),
	)

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !c.matchesExtension(event.Name) {
				continue
			}

			// Reset the per-file debounce timer on every event.
			mu.Lock()
			if timer, ok := pending[event.Name]; ok {
				timer.Stop()
			}
			name := event.Name
			pending[name] = time.AfterFunc(debounceWindow, func() {
				mu.Lock()
				delete(pending, name)
				mu.Unlock()
				c.ingestFile(name)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watcher error", zap.Error(err))

		case sig := <-sigChan:
			c.logger.Info("received signal, stopping watch", zap.String("signal", sig.String()))
			return nil
		}
	}
}

func (c *watchCommander) matchesExtension(path string) bool {
	if len(c.extensions) == 0 {
		return true
	}

	ext := filepath.Ext(path)
	for _, want := range c.extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func (c *watchCommander) ingestFile(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("reading changed file failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}

	if strings.TrimSpace(string(content)) == "" {
		c.logger.Debug("skipping empty file", zap.String("path", path))
		return
	}

	req := ingest.Request{
		Title:    filepath.Base(path),
		Content:  string(content),
		Metadata: map[string]any{"source_file": path},
	}

	_, _, err = ingestcmder.IngestAPI(c.apiTarget, c.apiKey, req, true)
	if err != nil {
		// Duplicate content conflicts are expected on touch-without-change.
		c.logger.Warn("ingest failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}

	c.logger.Info("queued changed file", zap.String("path", path))
}
