package config

const (
	defaultStorageProvider = "sqlite"
	defaultSQLiteFile      = "chronicle.db"

	defaultVectorProvider = "sqlite"

	defaultEmbeddingProvider   = "hashing"
	defaultEmbeddingDimensions = 256

	defaultGeneratorProvider = "ollama"
	defaultGeneratorModel    = "llama3.1"
	defaultOllamaTarget      = "http://localhost:11434"

	defaultAPIListen = ":8090"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "chronicle.ticks"

	defaultContradictionThreshold = 0.5
	defaultContextMaxTokens       = 4000
	defaultRetrievalTopK          = 12
	defaultTensionHistory         = 5
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			SQLitePath: defaultSQLiteFile,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Dimensions: defaultEmbeddingDimensions,
		},
		Generator: GeneratorConfig{
			Provider: defaultGeneratorProvider,
			Model:    defaultGeneratorModel,
			Target:   defaultOllamaTarget,
		},
		Engine: EngineConfig{
			UsePlotFirst:              true,
			PlotBeatsAhead:            3,
			PlotRegenerationThreshold: 2,
			VerifyBeatExecution:       true,
			AllowBeatSkip:             false,
			FallbackToReactive:        true,
			EnableLoreTracking:        true,
			ContradictionThreshold:    defaultContradictionThreshold,
			EnableTensionGuidance:     true,
			ContextMaxTokens:          defaultContextMaxTokens,
			RetrievalTopK:             defaultRetrievalTopK,
			TensionHistory:            defaultTensionHistory,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
