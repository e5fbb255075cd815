package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// SiteAll is the site scope that searches every indexed site.
const SiteAll = "all"

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. Candidate
// fields are stored as payload properties; the site property is indexed
// server-side for scoped search.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores or updates a batch of candidates with their embeddings.
// Candidate identity is the URL, hashed to a deterministic point UUID so
// re-ingesting the same site updates in place.
func (s *QdrantStore) Upsert(ctx context.Context, candidates []Candidate, embeddings [][]float32) error {
	if len(candidates) != len(embeddings) {
		return fmt.Errorf("qdrant: candidates and embeddings are not parallel (%d vs %d)", len(candidates), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(candidates))
	for i, c := range candidates {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(c.URL)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"url":     c.URL,
				"name":    c.Name,
				"site":    c.Site,
				"payload": c.Payload,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search scoped to site and returns the
// top-k candidates. Site "all" searches the whole collection.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, site string, topK int) ([]Candidate, error) {
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if site != "" && site != SiteAll {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("site", site),
			},
		}
	}

	results, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		p := r.Payload
		if p == nil {
			continue
		}
		candidates = append(candidates, Candidate{
			URL:     p["url"].GetStringValue(),
			Name:    p["name"].GetStringValue(),
			Site:    p["site"].GetStringValue(),
			Payload: p["payload"].GetStringValue(),
		})
	}

	return candidates, nil
}

// DeleteBySite removes every point whose site payload property matches.
func (s *QdrantStore) DeleteBySite(ctx context.Context, site string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("site", site),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete by site %q failed: %w", site, err)
	}

	return nil
}

// Ping verifies the Qdrant server is reachable. Satisfies the server's
// readiness-probe contract.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Name returns the probe label for readiness responses.
func (s *QdrantStore) Name() string { return "qdrant" }

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointUUID derives a stable point ID from a candidate URL so repeated
// ingests of the same item update rather than duplicate it.
func pointUUID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}
