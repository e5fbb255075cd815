package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIEmbedder implements Embedder against the OpenAI embeddings REST API,
// or an Azure OpenAI deployment when an endpoint and API version are set.
type OpenAIEmbedder struct {
	// apiKey authenticates the request.
	apiKey string
	// model is the embedding model name (e.g. "text-embedding-3-small").
	model string
	// endpoint overrides the default API base URL. When set together with
	// apiVersion, Azure request and auth conventions are used.
	endpoint string
	// apiVersion is the Azure OpenAI API version (e.g. "2024-02-01").
	apiVersion string
	client     *http.Client
}

// OpenAIEmbedderConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIEmbedderConfig struct {
	// APIKey authenticates the request. Required.
	APIKey string
	// Model is the embedding model name. Required.
	Model string
	// Endpoint overrides the default https://api.openai.com base URL.
	// Required for Azure.
	Endpoint string
	// APIVersion is the Azure OpenAI API version. Set only for Azure.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIEmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai embedder: model is required")
	}
	return &OpenAIEmbedder{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		endpoint:   cfg.Endpoint,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// url builds the request URL, following Azure deployment conventions when
// an API version is configured.
func (e *OpenAIEmbedder) url() string {
	if e.apiVersion != "" {
		base := strings.TrimSuffix(e.endpoint, "/")
		return fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s", base, e.model, e.apiVersion)
	}
	if e.endpoint != "" {
		return strings.TrimSuffix(e.endpoint, "/") + "/embeddings"
	}
	return "https://api.openai.com/v1/embeddings"
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(openAIEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiVersion != "" {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: read response: %w", err)
	}

	var out openAIEmbedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("openai embedder: decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai embedder: API error: %s", out.Error.Message)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: got %d embeddings for %d texts", len(out.Data), len(texts))
	}

	// The API may return entries out of order; place each by its index.
	embeddings := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(embeddings) {
			return nil, fmt.Errorf("openai embedder: embedding index %d out of range", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}
