package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/chronicle/pkg/embeddings/utils"
	"github.com/papercomputeco/chronicle/pkg/eventstream"
	"github.com/papercomputeco/chronicle/pkg/eventstream/kafka"
	"github.com/papercomputeco/chronicle/pkg/eventstream/nop"
	"github.com/papercomputeco/chronicle/pkg/stage"
	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	"github.com/papercomputeco/chronicle/pkg/storage/postgres"
	"github.com/papercomputeco/chronicle/pkg/storage/sqlite"
	"github.com/papercomputeco/chronicle/pkg/vector"
	vectorutils "github.com/papercomputeco/chronicle/pkg/vector/utils"
)

const (
	storageInMemory = "inmemory"
	storageSQLite   = "sqlite"
	storagePostgres = "postgres"

	eventsNop   = "nop"
	eventsKafka = "kafka"

	vectorsFile = "vectors.db"
)

// VectorFactory opens the vector driver backing one index.
type VectorFactory func(ctx context.Context, collection string) (vector.Driver, error)

func newStorage(ctx context.Context, dir string, c config.StorageConfig) (storage.Driver, error) {
	switch c.Provider {
	case storageInMemory:
		return inmemory.NewDriver(), nil
	case storageSQLite, "":
		return sqlite.NewDriver(ctx, inDir(dir, c.SQLitePath))
	case storagePostgres:
		if c.PostgresDSN == "" {
			return nil, fmt.Errorf("storage provider postgres needs storage.postgres_dsn")
		}
		return postgres.NewDriver(ctx, c.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", c.Provider)
	}
}

func newEmbedder(c config.EmbeddingConfig) (embeddings.Embedder, error) {
	return embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.Provider,
		TargetURL:    c.Target,
		Model:        c.Model,
		APIKey:       os.Getenv("OPENAI_API_KEY"),
		Dimensions:   c.Dimensions,
	})
}

func vectorFactory(dir string, c config.Config, logger *zap.Logger) VectorFactory {
	return func(ctx context.Context, collection string) (vector.Driver, error) {
		o := &vectorutils.NewVectorDriverOpts{
			ProviderType:   c.VectorStore.Provider,
			TargetURL:      c.VectorStore.Target,
			APIKey:         os.Getenv("QDRANT_API_KEY"),
			CollectionName: "chronicle_" + collection,
			Dimensions:     c.Embedding.Dimensions,
			Logger:         logger,
		}
		if o.ProviderType == vectorutils.ProviderSQLite {
			o.DBPath = inDir(dir, vectorsFile)
			if c.VectorStore.Target != "" {
				o.DBPath = inDir(dir, c.VectorStore.Target)
			}
		}
		return vectorutils.NewVectorDriver(ctx, o)
	}
}

func newGenerator(c config.GeneratorConfig, logger *zap.Logger) (stage.Generator, error) {
	call, err := stage.NewCaller(stage.CallerConfig{
		Provider: c.Provider,
		Model:    c.Model,
		BaseURL:  c.Target,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return stage.NewLLMGenerator(call, logger), nil
}

func newPublisher(c config.EventsConfig, logger *zap.Logger) (eventstream.Publisher, error) {
	switch c.Provider {
	case eventsNop, "":
		return nop.NewPublisher(), nil
	case eventsKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: c.Brokers,
			Topic:   c.Topic,
			Logger:  logger,
		})
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.Provider)
	}
}

// inDir resolves a relative path against the project directory.
func inDir(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
