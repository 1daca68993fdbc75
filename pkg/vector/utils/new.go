// Package vectorutils builds a vector.Driver from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/vector"
	"github.com/papercomputeco/chronicle/pkg/vector/chroma"
	"github.com/papercomputeco/chronicle/pkg/vector/inmemory"
	"github.com/papercomputeco/chronicle/pkg/vector/qdrant"
	"github.com/papercomputeco/chronicle/pkg/vector/sqlitevec"
)

const (
	ProviderInMemory = "inmemory"
	ProviderSQLite   = "sqlite"
	ProviderChroma   = "chroma"
	ProviderQdrant   = "qdrant"
)

// Providers lists the supported vector store providers.
var Providers = []string{ProviderInMemory, ProviderSQLite, ProviderChroma, ProviderQdrant}

type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is the Chroma URL or the Qdrant host:port.
	TargetURL string

	// APIKey is passed to Qdrant.
	APIKey string

	// CollectionName distinguishes the lore index from the scene index.
	CollectionName string

	// DBPath is the sqlite-vec database file.
	DBPath string

	Dimensions uint
	Logger     *zap.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch o.ProviderType {
	case ProviderInMemory, "":
		return inmemory.NewDriver(), nil
	case ProviderSQLite:
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:         o.DBPath,
			CollectionName: o.CollectionName,
			Dimensions:     o.Dimensions,
		}, logger)
	case ProviderChroma:
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.CollectionName,
			MaxRetries:     5,
			RetryDelay:     500 * time.Millisecond,
			MaxRetryDelay:  5 * time.Second,
		}, logger)
	case ProviderQdrant:
		return qdrant.NewDriver(ctx, qdrant.Config{
			Target:         o.TargetURL,
			APIKey:         o.APIKey,
			CollectionName: o.CollectionName,
			Dimensions:     o.Dimensions,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
