// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth for the HTTP API. Empty disables auth.
	APIKey string `yaml:"api_key"`

	// Claude generation
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`

	// Embeddings
	EmbedderType   string `yaml:"embedder_type"` // openai or ollama
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	OllamaURL      string `yaml:"ollama_url"`

	// Vector store
	VectorBackend     string `yaml:"vector_backend"` // qdrant or memory
	QdrantURL         string `yaml:"qdrant_url"`
	QdrantAPIKey      string `yaml:"qdrant_api_key"`
	CatalogCollection string `yaml:"catalog_collection"`
	ContentCollection string `yaml:"content_collection"`

	// Chunking
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// Retrieval and orchestration
	MaxResults    int `yaml:"max_results"`
	MaxHistory    int `yaml:"max_history"`
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// Corpus
	DocsPath     string `yaml:"docs_path"`
	TopicMapPath string `yaml:"topic_map_path"`
	WatchDocs    bool   `yaml:"watch_docs"`

	// Sessions
	SessionDBPath string `yaml:"session_db_path"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Load builds the configuration: defaults, then the YAML file named by
// MEDRAG_CONFIG (if any), then environment variables on top.
func Load() (Config, error) {
	cfg := Config{
		Port:              "8090",
		AnthropicModel:    "claude-sonnet-4-5-20250929",
		EmbedderType:      "openai",
		OpenAIBaseURL:     "https://api.openai.com/v1",
		EmbeddingModel:    "text-embedding-3-small",
		OllamaURL:         "http://localhost:11434",
		VectorBackend:     "qdrant",
		QdrantURL:         "http://localhost:6333",
		CatalogCollection: "paper_catalog",
		ContentCollection: "paper_content",
		ChunkSize:         800,
		ChunkOverlap:      100,
		MaxResults:        5,
		MaxHistory:        10,
		MaxToolRounds:     1,
		DocsPath:          "./docs",
		WatchDocs:         true,
		SessionDBPath:     "./sessions.db",
		MaxUploadBytes:    52428800, // 50MB
	}

	if path := os.Getenv("MEDRAG_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("MEDRAG_API_KEY", cfg.APIKey)

	cfg.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = envOr("ANTHROPIC_MODEL", cfg.AnthropicModel)

	cfg.EmbedderType = envOr("EMBEDDER_TYPE", cfg.EmbedderType)
	cfg.OpenAIAPIKey = envOr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOr("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.EmbeddingModel = envOr("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.OllamaURL = envOr("OLLAMA_URL", cfg.OllamaURL)

	cfg.VectorBackend = envOr("VECTOR_BACKEND", cfg.VectorBackend)
	cfg.QdrantURL = envOr("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantAPIKey = envOr("QDRANT_API_KEY", cfg.QdrantAPIKey)
	cfg.CatalogCollection = envOr("CATALOG_COLLECTION", cfg.CatalogCollection)
	cfg.ContentCollection = envOr("CONTENT_COLLECTION", cfg.ContentCollection)

	cfg.ChunkSize = envInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = envInt("CHUNK_OVERLAP", cfg.ChunkOverlap)

	cfg.MaxResults = envInt("MAX_RESULTS", cfg.MaxResults)
	cfg.MaxHistory = envInt("MAX_HISTORY", cfg.MaxHistory)
	cfg.MaxToolRounds = envInt("MAX_TOOL_ROUNDS", cfg.MaxToolRounds)

	cfg.DocsPath = envOr("DOCS_PATH", cfg.DocsPath)
	cfg.TopicMapPath = envOr("TOPIC_MAP_PATH", cfg.TopicMapPath)
	cfg.WatchDocs = envBool("WATCH_DOCS", cfg.WatchDocs)

	cfg.SessionDBPath = envOr("SESSION_DB_PATH", cfg.SessionDBPath)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 8
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 10
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	switch c.EmbedderType {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDER_TYPE=openai")
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown EMBEDDER_TYPE %q (want openai or ollama)", c.EmbedderType)
	}
	switch c.VectorBackend {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q (want qdrant or memory)", c.VectorBackend)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
