package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent chronicle configuration stored as
// config.toml in the .chronicle/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Generator   GeneratorConfig   `toml:"generator"`
	Engine      EngineConfig      `toml:"engine"`
	API         APIConfig         `toml:"api"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig selects the durable record store.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// GeneratorConfig selects the model behind every generation stage.
// API keys are read from the environment.
type GeneratorConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EngineConfig holds the tick options.
type EngineConfig struct {
	UsePlotFirst              bool    `toml:"use_plot_first" json:"use_plot_first"`
	PlotBeatsAhead            int     `toml:"plot_beats_ahead" json:"plot_beats_ahead"`
	PlotRegenerationThreshold int     `toml:"plot_regeneration_threshold" json:"plot_regeneration_threshold"`
	VerifyBeatExecution       bool    `toml:"verify_beat_execution" json:"verify_beat_execution"`
	AllowBeatSkip             bool    `toml:"allow_beat_skip" json:"allow_beat_skip"`
	FallbackToReactive        bool    `toml:"fallback_to_reactive" json:"fallback_to_reactive"`
	EnableLoreTracking        bool    `toml:"enable_lore_tracking" json:"enable_lore_tracking"`
	ContradictionThreshold    float64 `toml:"contradiction_threshold" json:"contradiction_threshold"`
	EnableTensionGuidance     bool    `toml:"enable_tension_guidance" json:"enable_tension_guidance"`

	ContextMaxTokens int `toml:"context_max_tokens,omitempty" json:"context_max_tokens,omitempty"`
	RetrievalTopK    int `toml:"retrieval_top_k,omitempty" json:"retrieval_top_k,omitempty"`
	TensionHistory   int `toml:"tension_history,omitempty" json:"tension_history,omitempty"`
}

// ErrInvalidEngineConfig is returned by EngineConfig.Validate.
var ErrInvalidEngineConfig = errors.New("invalid engine config")

// Validate rejects out-of-range options.
func (e EngineConfig) Validate() error {
	if e.ContradictionThreshold < 0 || e.ContradictionThreshold > 2 {
		return fmt.Errorf("%w: contradiction_threshold %.2f outside 0.0-2.0", ErrInvalidEngineConfig, e.ContradictionThreshold)
	}
	for name, n := range map[string]int{
		"plot_beats_ahead":            e.PlotBeatsAhead,
		"plot_regeneration_threshold": e.PlotRegenerationThreshold,
		"context_max_tokens":          e.ContextMaxTokens,
		"retrieval_top_k":             e.RetrievalTopK,
		"tension_history":             e.TensionHistory,
	} {
		if n < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidEngineConfig, name)
		}
	}
	return nil
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventsConfig selects where tick events are published.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider":     stringKey(func(c *Config) *string { return &c.Storage.Provider }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"vector_store.provider": stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":   stringKey(func(c *Config) *string { return &c.VectorStore.Target }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},

	"generator.provider": stringKey(func(c *Config) *string { return &c.Generator.Provider }),
	"generator.model":    stringKey(func(c *Config) *string { return &c.Generator.Model }),
	"generator.target":   stringKey(func(c *Config) *string { return &c.Generator.Target }),

	"engine.use_plot_first":              boolKey("engine.use_plot_first", func(c *Config) *bool { return &c.Engine.UsePlotFirst }),
	"engine.plot_beats_ahead":            intKey("engine.plot_beats_ahead", func(c *Config) *int { return &c.Engine.PlotBeatsAhead }),
	"engine.plot_regeneration_threshold": intKey("engine.plot_regeneration_threshold", func(c *Config) *int { return &c.Engine.PlotRegenerationThreshold }),
	"engine.verify_beat_execution":       boolKey("engine.verify_beat_execution", func(c *Config) *bool { return &c.Engine.VerifyBeatExecution }),
	"engine.allow_beat_skip":             boolKey("engine.allow_beat_skip", func(c *Config) *bool { return &c.Engine.AllowBeatSkip }),
	"engine.fallback_to_reactive":        boolKey("engine.fallback_to_reactive", func(c *Config) *bool { return &c.Engine.FallbackToReactive }),
	"engine.enable_lore_tracking":        boolKey("engine.enable_lore_tracking", func(c *Config) *bool { return &c.Engine.EnableLoreTracking }),
	"engine.contradiction_threshold": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Engine.ContradictionThreshold, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for engine.contradiction_threshold: %w", err)
			}
			if f < 0 || f > 2 {
				return fmt.Errorf("invalid value for engine.contradiction_threshold: %v outside 0.0-2.0", f)
			}
			c.Engine.ContradictionThreshold = f
			return nil
		},
	},
	"engine.enable_tension_guidance": boolKey("engine.enable_tension_guidance", func(c *Config) *bool { return &c.Engine.EnableTensionGuidance }),
	"engine.context_max_tokens":      intKey("engine.context_max_tokens", func(c *Config) *int { return &c.Engine.ContextMaxTokens }),
	"engine.retrieval_top_k":         intKey("engine.retrieval_top_k", func(c *Config) *int { return &c.Engine.RetrievalTopK }),
	"engine.tension_history":         intKey("engine.tension_history", func(c *Config) *int { return &c.Engine.TensionHistory }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for b := range strings.SplitSeq(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Events.Brokers = append(c.Events.Brokers, b)
				}
			}
			return nil
		},
	},
	"events.topic": stringKey(func(c *Config) *string { return &c.Events.Topic }),
}
