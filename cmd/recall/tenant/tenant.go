// Package tenantcmder provides tenant administration commands that operate
// directly on the storage backend.
package tenantcmder

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/storage"
	storageutils "github.com/papercomputeco/recall/pkg/storage/utils"
)

const tenantLongDesc string = `Manage tenants.

Tenant administration talks to the storage backend directly rather than
going through the API, so it runs on the same host/config as the server.

Use subcommands:
  recall tenant create <name>    Create a tenant and print its API key`

const tenantShortDesc string = "Manage tenants"

func NewTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: tenantShortDesc,
		Long:  tenantLongDesc,
	}

	cmd.AddCommand(newCreateCmd())

	return cmd
}

type createCommander struct {
	name       string
	tokenLimit int64
	debug      bool
	logger     *zap.Logger
}

const createLongDesc string = `Create a tenant.

Generates a fresh API key, stores only its hash, and prints the plaintext
key once. The key cannot be recovered afterwards.

Example:
  recall tenant create acme
  recall tenant create acme --token-limit 500000`

func newCreateCmd() *cobra.Command {
	cmder := &createCommander{}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tenant",
		Long:  createLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.name = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(configDir)
		},
	}

	cmd.Flags().Int64Var(&cmder.tokenLimit, "token-limit", 0,
		fmt.Sprintf("Daily token limit (default %d)", storage.DefaultTokenLimitPerDay))

	return cmd
}

func (c *createCommander) run(configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	provider := v.GetString("storage.provider")
	target := v.GetString("storage.target")
	if target == "" && provider == "sqlite" {
		ddTarget, err := dotdir.NewManager().Target(configDir)
		if err != nil {
			return fmt.Errorf("resolving data dir: %w", err)
		}
		target = filepath.Join(ddTarget, "recall.db")
	}

	ctx := context.Background()
	storer, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		ProviderType: provider,
		Target:       target,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating storage driver: %w", err)
	}
	defer storer.Close()

	apiKey, err := generateAPIKey()
	if err != nil {
		return err
	}

	tenant := storage.NewTenant(c.name, apiKey, c.tokenLimit)
	if err := storer.CreateTenant(ctx, tenant); err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}

	fmt.Printf("Created tenant %q\n", tenant.Name)
	fmt.Printf("  ID:          %s\n", tenant.ID)
	fmt.Printf("  Token limit: %d/day\n", tenant.TokenLimitPerDay)
	fmt.Printf("  API key:     %s\n", apiKey)
	fmt.Println("\nStore this API key now. Only its hash is kept and it cannot be shown again.")

	return nil
}

// generateAPIKey returns a fresh random key with a recognizable prefix.
func generateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating API key: %w", err)
	}
	return "rk_" + hex.EncodeToString(raw), nil
}
