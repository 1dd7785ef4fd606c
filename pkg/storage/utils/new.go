// Package storageutils is the storage utility package
package storageutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/storage/postgres"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
)

type NewDriverOpts struct {
	ProviderType string
	// Target is the provider-specific location: a connection string for
	// postgres or a file path for sqlite.
	Target string
	Logger *zap.Logger
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.ProviderType {
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			ConnString: o.Target,
		}, o.Logger)
	case "sqlite":
		return sqlite.New(sqlite.Config{
			DBPath: o.Target,
		}, o.Logger)
	case "memory":
		return inmemory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", o.ProviderType)
	}
}
