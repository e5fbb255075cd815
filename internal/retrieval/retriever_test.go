package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeEmbedder returns a fixed vector per text and records calls.
type fakeEmbedder struct {
	calls []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeStore records the search it was asked to run and returns canned candidates.
type fakeStore struct {
	gotSite  string
	gotLimit int
	results  []Candidate
	err      error
}

func (f *fakeStore) Upsert(context.Context, []Candidate, [][]float32) error { return nil }

func (f *fakeStore) Search(_ context.Context, _ []float32, site string, limit int) ([]Candidate, error) {
	f.gotSite = site
	f.gotLimit = limit
	return f.results, f.err
}

func (f *fakeStore) DeleteBySite(context.Context, string) error { return nil }
func (f *fakeStore) Close() error                               { return nil }

func Test_Retriever_Search(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	store := &fakeStore{results: []Candidate{{URL: "https://a", Name: "A", Site: "recipes"}}}
	r, err := NewRetriever(emb, store, 0)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	got, err := r.Search(context.Background(), "pasta", "recipes", 7)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].URL != "https://a" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if len(emb.calls) != 1 || emb.calls[0] != "pasta" {
		t.Fatalf("query not embedded: %v", emb.calls)
	}
	if store.gotSite != "recipes" || store.gotLimit != 7 {
		t.Fatalf("store got site=%q limit=%d", store.gotSite, store.gotLimit)
	}
}

func Test_Retriever_DefaultLimit(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r, err := NewRetriever(&fakeEmbedder{}, store, 0)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	if _, err := r.Search(context.Background(), "q", "all", 0); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.gotLimit != 50 {
		t.Fatalf("expected default limit 50, got %d", store.gotLimit)
	}
}

func Test_Retriever_EmbedError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	r, err := NewRetriever(&fakeEmbedder{err: wantErr}, &fakeStore{}, 0)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	if _, err := r.Search(context.Background(), "q", "all", 5); !errors.Is(err, wantErr) {
		t.Fatalf("expected embed error, got %v", err)
	}
}

func Test_Retriever_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, &fakeStore{}, 0); err == nil {
		t.Fatal("expected error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 0); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func Test_NewStore_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := NewStore(context.Background(), StoreBackend("cassandra"), nil)
	if err == nil || !strings.Contains(err.Error(), "unknown store backend") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func Test_NewEmbedder_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := NewEmbedder(EmbedderBackend("cohere"), &EmbedderConfig{})
	if err == nil || !strings.Contains(err.Error(), "unknown embedder backend") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func Test_NewEmbedder_AzureRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewEmbedder(EmbedderAzure, &EmbedderConfig{APIKey: "k", Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected endpoint error, got %v", err)
	}
}
