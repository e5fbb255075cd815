// Package retrieval defines the interfaces for candidate retrieval: vector
// storage, query-time search, and text embedding. Concrete implementations
// (Qdrant, in-memory) satisfy these interfaces so the pipeline never depends
// on a specific backend.
package retrieval

import (
	"context"
)

// Candidate is one retrieved item, immutable once fetched.
type Candidate struct {
	// URL is the item's canonical URL and unique identity within a site.
	URL string

	// Payload is the item's raw schema.org JSON as stored at ingest time.
	Payload string

	// Name is the item's display name.
	Name string

	// Site is the site the item was ingested from.
	Site string
}

// Retriever is the retrieval collaborator contract used by the pipeline.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Search returns up to limit candidates relevant to query within the
	// given site scope ("all" searches every site). An empty slice means
	// "no results"; an error is fatal to this retrieval attempt only.
	Search(ctx context.Context, query, site string, limit int) ([]Candidate, error)
}

// VectorStore is the interface for persisting and searching embedded
// candidates. Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of candidates with their pre-computed
	// embeddings. embeddings[i] is the vector for candidates[i].
	Upsert(ctx context.Context, candidates []Candidate, embeddings [][]float32) error

	// Search returns the top-k candidates nearest to queryEmbedding within
	// the site scope ("all" searches every site).
	Search(ctx context.Context, queryEmbedding []float32, site string, topK int) ([]Candidate, error)

	// DeleteBySite removes every candidate ingested from the given site and
	// returns the number of deleted points when the backend reports it.
	DeleteBySite(ctx context.Context, site string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
