package retrieval

import (
	"context"
	"fmt"
)

// DefaultRetriever implements Retriever by combining an Embedder and a
// VectorStore. It embeds the query at search time and delegates similarity
// search to the store.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultLimit is the number of results to return when the caller passes 0.
	defaultLimit int
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and
// VectorStore. defaultLimit sets the fallback result count when Search is
// called with limit=0.
func NewRetriever(embedder Embedder, store VectorStore, defaultLimit int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("retrieval: store must not be nil")
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &DefaultRetriever{
		embedder:     embedder,
		store:        store,
		defaultLimit: defaultLimit,
	}, nil
}

// Search embeds the query and returns the top candidates for the site scope.
// If limit is 0 the defaultLimit configured at construction time is used.
func (r *DefaultRetriever) Search(ctx context.Context, query, site string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("retrieval: embedder returned empty result for query")
	}

	candidates, err := r.store.Search(ctx, embeddings[0], site, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search failed: %w", err)
	}

	return candidates, nil
}
