// Package recallcmder
package recallcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/recall/cmd/recall/config"
	ingestcmder "github.com/papercomputeco/recall/cmd/recall/ingest"
	searchcmder "github.com/papercomputeco/recall/cmd/recall/search"
	servecmder "github.com/papercomputeco/recall/cmd/recall/serve"
	tenantcmder "github.com/papercomputeco/recall/cmd/recall/tenant"
	watchcmder "github.com/papercomputeco/recall/cmd/recall/watch"
	versioncmder "github.com/papercomputeco/recall/cmd/version"
)

const recallLongDesc string = `Recall is multi-tenant semantic search over your documents.

Run the server using:
  recall serve         Run the API server

Work with documents using:
  recall ingest        Ingest documents through the API
  recall search        Search ingested documents
  recall watch         Watch a directory and ingest changed files`

const recallShortDesc string = "Recall - Semantic Document Search"

func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: recallShortDesc,
		Long:  recallLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .recall/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(tenantcmder.NewTenantCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
