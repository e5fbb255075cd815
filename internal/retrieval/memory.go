package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process VectorStore used for development and tests.
// It performs exact cosine-similarity search over everything upserted.
type MemoryStore struct {
	// mu guards points.
	mu sync.RWMutex
	// points maps candidate URL to its stored entry.
	points map[string]memoryPoint
}

// memoryPoint is one stored candidate with its embedding.
type memoryPoint struct {
	candidate Candidate
	embedding []float32
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]memoryPoint)}
}

// Upsert stores or replaces candidates keyed by URL.
func (s *MemoryStore) Upsert(_ context.Context, candidates []Candidate, embeddings [][]float32) error {
	if len(candidates) != len(embeddings) {
		return fmt.Errorf("memory store: candidates and embeddings are not parallel (%d vs %d)", len(candidates), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range candidates {
		s.points[c.URL] = memoryPoint{candidate: c, embedding: embeddings[i]}
	}
	return nil
}

// Search returns the topK candidates by cosine similarity within the site
// scope.
func (s *MemoryStore) Search(_ context.Context, queryEmbedding []float32, site string, topK int) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		candidate  Candidate
		similarity float64
	}
	matches := make([]scored, 0, len(s.points))
	for _, p := range s.points {
		if site != "" && site != SiteAll && p.candidate.Site != site {
			continue
		}
		matches = append(matches, scored{
			candidate:  p.candidate,
			similarity: cosine(queryEmbedding, p.embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].similarity > matches[j].similarity })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.candidate)
	}
	return out, nil
}

// DeleteBySite removes every candidate belonging to site.
func (s *MemoryStore) DeleteBySite(_ context.Context, site string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for url, p := range s.points {
		if p.candidate.Site == site {
			delete(s.points, url)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// cosine returns the cosine similarity of a and b, 0 when either is zero
// or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
