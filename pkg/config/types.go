package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent recall configuration stored as config.toml
// in the .recall/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Chunking    ChunkingConfig    `toml:"chunking"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// StorageConfig holds document/tenant storage settings.
type StorageConfig struct {
	// Provider is one of "sqlite", "postgres", "memory".
	Provider string `toml:"provider,omitempty"`

	// Target is the provider-specific location: a file path for sqlite or
	// a connection string for postgres.
	Target string `toml:"target,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// API server (e.g. recall ingest, recall search, recall watch).
type ClientConfig struct {
	// APITarget is a full URL (scheme + host + port).
	APITarget string `toml:"api_target,omitempty"`

	// APIKey is the tenant API key sent on client requests.
	APIKey string `toml:"api_key,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	// Provider is one of "pgvector", "sqlite", "qdrant", "memory".
	Provider string `toml:"provider,omitempty"`

	// Target is the provider-specific location: a connection string for
	// pgvector, a file path for sqlite, a host for qdrant.
	Target string `toml:"target,omitempty"`

	// Collection is the qdrant collection name.
	Collection string `toml:"collection,omitempty"`

	// QdrantPort is the qdrant gRPC port.
	QdrantPort uint `toml:"qdrant_port,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// ChunkingConfig holds chunker settings in tokens.
type ChunkingConfig struct {
	Size    uint `toml:"size,omitempty"`
	Overlap uint `toml:"overlap,omitempty"`
}

// EventStreamConfig holds document event publishing settings.
type EventStreamConfig struct {
	// Provider is one of "nop", "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated list of kafka broker addresses.
	Brokers string `toml:"brokers,omitempty"`

	// Topic is the kafka topic document events are published to.
	Topic string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.target": {
		get: func(c *Config) string { return c.Storage.Target },
		set: func(c *Config, v string) error { c.Storage.Target = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"client.api_key": {
		get: func(c *Config) string { return c.Client.APIKey },
		set: func(c *Config, v string) error { c.Client.APIKey = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.collection": {
		get: func(c *Config) string { return c.VectorStore.Collection },
		set: func(c *Config, v string) error { c.VectorStore.Collection = v; return nil },
	},
	"vector_store.qdrant_port": {
		get: func(c *Config) string {
			if c.VectorStore.QdrantPort == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.VectorStore.QdrantPort), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for vector_store.qdrant_port: %w", err)
			}
			c.VectorStore.QdrantPort = uint(n)
			return nil
		},
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
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
	"chunking.size": {
		get: func(c *Config) string {
			if c.Chunking.Size == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Chunking.Size), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for chunking.size: %w", err)
			}
			c.Chunking.Size = uint(n)
			return nil
		},
	},
	"chunking.overlap": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Chunking.Overlap), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for chunking.overlap: %w", err)
			}
			c.Chunking.Overlap = uint(n)
			return nil
		},
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}
