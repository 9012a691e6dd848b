// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/bookrag/internal/ingest"
	"github.com/dgallion1/bookrag/internal/vectorindex"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "BOOKRAG_CONFIG"

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Storage
	BooksDir string `yaml:"books_dir"`
	DataDir  string `yaml:"data_dir"`

	// Chunking
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	MaxChunkTokens int `yaml:"max_chunk_tokens"`

	// Retrieval
	TopK int `yaml:"top_k"`

	// OpenAI-compatible models
	OpenAIAPIKey        string `yaml:"openai_api_key"`
	OpenAIBaseURL       string `yaml:"openai_base_url"`
	ChatModel           string `yaml:"chat_model"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	EmbedBatchSize      int    `yaml:"embed_batch_size"`

	// Vector index
	IndexAPIURL      string `yaml:"index_api_url"`
	IndexAccessToken string `yaml:"index_access_token"`
	IndexResource    string `yaml:"index_resource"`
	IndexEndpointURL string `yaml:"index_endpoint_url"`
	DeployedIndexID  string `yaml:"deployed_index_id"`

	// Answer persona
	AssistantName string `yaml:"assistant_name"`
	AuthorName    string `yaml:"author_name"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Port:                 "8090",
		BooksDir:             "books",
		DataDir:              "embeddings",
		ChunkSize:            1000,
		ChunkOverlap:         200,
		MaxChunkTokens:       8000,
		TopK:                 3,
		ChatModel:            "gpt-4o-mini",
		EmbeddingModel:       "text-embedding-3-small",
		EmbeddingDimensions:  768,
		EmbedBatchSize:       5,
		WorkerCount:          2,
		MaxQueueSize:         50,
		MaxUploadBytes:       52428800, // 50MB
		JobTTL:               1 * time.Hour,
		PDFFallbackPdftotext: true,
	}
}

// Load reads the YAML file named by BOOKRAG_CONFIG, if any, then applies
// environment overrides.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("BOOKRAG_API_KEY", cfg.APIKey)

	cfg.BooksDir = envOr("BOOKS_DIR", cfg.BooksDir)
	cfg.DataDir = envOr("DATA_DIR", cfg.DataDir)

	cfg.ChunkSize = envInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = envInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.MaxChunkTokens = envInt("MAX_CHUNK_TOKENS", cfg.MaxChunkTokens)
	cfg.TopK = envInt("TOP_K", cfg.TopK)

	cfg.OpenAIAPIKey = envOr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOr("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.ChatModel = envOr("CHAT_MODEL", cfg.ChatModel)
	cfg.EmbeddingModel = envOr("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDimensions = envInt("EMBEDDING_DIMENSIONS", cfg.EmbeddingDimensions)
	cfg.EmbedBatchSize = envInt("EMBED_BATCH_SIZE", cfg.EmbedBatchSize)

	cfg.IndexAPIURL = envOr("INDEX_API_URL", cfg.IndexAPIURL)
	cfg.IndexAccessToken = envOr("INDEX_ACCESS_TOKEN", cfg.IndexAccessToken)
	cfg.IndexResource = envOr("INDEX_RESOURCE", cfg.IndexResource)
	cfg.IndexEndpointURL = envOr("INDEX_ENDPOINT_URL", cfg.IndexEndpointURL)
	cfg.DeployedIndexID = envOr("DEPLOYED_INDEX_ID", cfg.DeployedIndexID)

	cfg.AssistantName = envOr("ASSISTANT_NAME", cfg.AssistantName)
	cfg.AuthorName = envOr("AUTHOR_NAME", cfg.AuthorName)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	def := Defaults()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = def.EmbeddingDimensions
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = def.EmbedBatchSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = def.JobTTL
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings the HTTP server needs.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("BOOKRAG_API_KEY is required")
	}
	return c.ValidateChunking()
}

// ValidateChunking checks the chunking settings on their own, for tools
// that do not serve HTTP.
func (c Config) ValidateChunking() error {
	if c.ChunkSize <= c.ChunkOverlap {
		return fmt.Errorf("CHUNK_SIZE (%d) must be greater than CHUNK_OVERLAP (%d)", c.ChunkSize, c.ChunkOverlap)
	}
	if c.MaxChunkTokens <= 0 {
		return fmt.Errorf("MAX_CHUNK_TOKENS must be positive, got %d", c.MaxChunkTokens)
	}
	return nil
}

// Ingest returns the document processing settings.
func (c Config) Ingest() ingest.Config {
	return ingest.Config{
		ChunkSize:            c.ChunkSize,
		ChunkOverlap:         c.ChunkOverlap,
		MaxChunkTokens:       c.MaxChunkTokens,
		PDFFallbackPdftotext: c.PDFFallbackPdftotext,
	}
}

// LLMEnabled reports whether an OpenAI-compatible API key is configured.
func (c Config) LLMEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// IndexEnabled reports whether the vector index is configured for upserts.
func (c Config) IndexEnabled() bool {
	return c.IndexAPIURL != "" && c.IndexResource != ""
}

// VectorIndex returns the vector index client settings.
func (c Config) VectorIndex() vectorindex.Config {
	return vectorindex.Config{
		APIURL:          c.IndexAPIURL,
		Index:           c.IndexResource,
		EndpointURL:     c.IndexEndpointURL,
		DeployedIndexID: c.DeployedIndexID,
		AccessToken:     c.IndexAccessToken,
		BatchDelay:      time.Second,
	}
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
