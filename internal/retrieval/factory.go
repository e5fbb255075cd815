package retrieval

import (
	"context"
	"fmt"
	"os"
)

// StoreBackend identifies a vector store implementation.
type StoreBackend string

const (
	// StoreQdrant stores vectors in a Qdrant collection over gRPC.
	StoreQdrant StoreBackend = "qdrant"
	// StoreMemory keeps vectors in process memory. Intended for tests
	// and local experiments; nothing survives a restart.
	StoreMemory StoreBackend = "memory"
)

// EmbedderBackend identifies an embedding provider.
type EmbedderBackend string

const (
	// EmbedderOllama uses a local Ollama server.
	EmbedderOllama EmbedderBackend = "ollama"
	// EmbedderOpenAI uses the OpenAI embeddings API.
	EmbedderOpenAI EmbedderBackend = "openai"
	// EmbedderAzure uses an Azure OpenAI embeddings deployment.
	EmbedderAzure EmbedderBackend = "azure"
)

// NewStore constructs a VectorStore for the given backend.
// Unrecognized backends are an error, not a silent default.
func NewStore(ctx context.Context, backend StoreBackend, cfg *QdrantConfig) (VectorStore, error) {
	switch backend {
	case StoreQdrant:
		return NewQdrantStore(ctx, cfg)
	case StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("retrieval: unknown store backend %q (expected qdrant or memory)", backend)
	}
}

// NewStoreFromEnv constructs a VectorStore from RETRIEVAL_BACKEND,
// QDRANT_HOST, QDRANT_PORT and QDRANT_COLLECTION.
func NewStoreFromEnv(ctx context.Context) (VectorStore, error) {
	backend := StoreBackend(getEnvOrDefault("RETRIEVAL_BACKEND", string(StoreQdrant)))
	cfg := &QdrantConfig{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "askweb"),
		VectorSize: uint64(getEnvInt("QDRANT_VECTOR_SIZE", 768)),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_USE_TLS") == "true",
	}
	return NewStore(ctx, backend, cfg)
}

// NewEmbedder constructs an Embedder for the given backend.
// Unrecognized backends are an error, not a silent default.
func NewEmbedder(backend EmbedderBackend, cfg *EmbedderConfig) (Embedder, error) {
	switch backend {
	case EmbedderOllama:
		return NewOllamaEmbedder(&OllamaEmbedderConfig{Host: cfg.Host, Model: cfg.Model}), nil
	case EmbedderOpenAI:
		return NewOpenAIEmbedder(&OpenAIEmbedderConfig{APIKey: cfg.APIKey, Model: cfg.Model})
	case EmbedderAzure:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("retrieval: azure embedder requires an endpoint (set AZURE_OPENAI_ENDPOINT)")
		}
		return NewOpenAIEmbedder(&OpenAIEmbedderConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Endpoint:   cfg.Endpoint,
			APIVersion: cfg.APIVersion,
		})
	default:
		return nil, fmt.Errorf("retrieval: unknown embedder backend %q (expected ollama, openai or azure)", backend)
	}
}

// EmbedderConfig holds the settings shared across embedding providers.
// Fields irrelevant to the selected backend are ignored.
type EmbedderConfig struct {
	// Host is the server base URL for local providers.
	Host string
	// Model is the embedding model or deployment name.
	Model string
	// APIKey authenticates hosted providers.
	APIKey string
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
}

// NewEmbedderFromEnv constructs an Embedder from EMBEDDING_PROVIDER,
// EMBEDDING_MODEL and the provider-specific variables.
func NewEmbedderFromEnv() (Embedder, error) {
	backend := EmbedderBackend(getEnvOrDefault("EMBEDDING_PROVIDER", string(EmbedderOllama)))
	cfg := &EmbedderConfig{
		Host:       getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultEmbeddingModel(backend)),
		APIKey:     embedderAPIKey(backend),
		Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
	}
	return NewEmbedder(backend, cfg)
}

// defaultEmbeddingModel returns a sensible default model per backend.
func defaultEmbeddingModel(backend EmbedderBackend) string {
	switch backend {
	case EmbedderOpenAI, EmbedderAzure:
		return "text-embedding-3-small"
	default:
		return "nomic-embed-text"
	}
}

func embedderAPIKey(backend EmbedderBackend) string {
	if backend == EmbedderAzure {
		return os.Getenv("AZURE_OPENAI_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
