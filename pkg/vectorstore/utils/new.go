// Package vectorstoreutils is the vector store utility package
package vectorstoreutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/vectorstore"
	"github.com/papercomputeco/recall/pkg/vectorstore/inmemory"
	"github.com/papercomputeco/recall/pkg/vectorstore/pgvector"
	"github.com/papercomputeco/recall/pkg/vectorstore/qdrant"
	"github.com/papercomputeco/recall/pkg/vectorstore/sqlitevec"
)

type NewStoreOpts struct {
	ProviderType string
	// Target is the provider-specific location: a connection string for
	// pgvector, a file path for sqlite, a host:port-less host for qdrant.
	Target     string
	Collection string
	QdrantPort int
	Dimension  int
	Logger     *zap.Logger
}

func NewStore(ctx context.Context, o *NewStoreOpts) (vectorstore.Store, error) {
	switch o.ProviderType {
	case "pgvector":
		return pgvector.New(ctx, pgvector.Config{
			ConnString: o.Target,
			Dimension:  o.Dimension,
		}, o.Logger)
	case "sqlite":
		return sqlitevec.New(sqlitevec.Config{
			DBPath:    o.Target,
			Dimension: o.Dimension,
		}, o.Logger)
	case "qdrant":
		return qdrant.New(ctx, qdrant.Config{
			Host:       o.Target,
			Port:       o.QdrantPort,
			Collection: o.Collection,
			Dimension:  o.Dimension,
		}, o.Logger)
	case "memory":
		return inmemory.New(inmemory.Config{
			Dimension: o.Dimension,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
