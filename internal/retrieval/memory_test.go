package retrieval

import (
	"context"
	"testing"
)

func seedMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	candidates := []Candidate{
		{URL: "https://r/1", Name: "Carbonara", Site: "recipes"},
		{URL: "https://r/2", Name: "Tiramisu", Site: "recipes"},
		{URL: "https://p/1", Name: "Episode 1", Site: "podcasts"},
	}
	embeddings := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}
	if err := s.Upsert(context.Background(), candidates, embeddings); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return s
}

func Test_MemoryStore_SearchRanksBySimilarity(t *testing.T) {
	t.Parallel()

	s := seedMemoryStore(t)
	got, err := s.Search(context.Background(), []float32{1, 0, 0}, SiteAll, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].URL != "https://r/1" {
		t.Fatalf("expected closest match first, got %q", got[0].URL)
	}
}

func Test_MemoryStore_SearchScopesBySite(t *testing.T) {
	t.Parallel()

	s := seedMemoryStore(t)
	got, err := s.Search(context.Background(), []float32{1, 0, 0}, "podcasts", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Site != "podcasts" {
		t.Fatalf("expected only podcasts candidates, got %+v", got)
	}
}

func Test_MemoryStore_UpsertReplacesByURL(t *testing.T) {
	t.Parallel()

	s := seedMemoryStore(t)
	err := s.Upsert(context.Background(),
		[]Candidate{{URL: "https://r/1", Name: "Carbonara v2", Site: "recipes"}},
		[][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := s.Search(context.Background(), []float32{1, 0, 0}, "recipes", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got[0].Name != "Carbonara v2" {
		t.Fatalf("expected replaced candidate, got %q", got[0].Name)
	}
}

func Test_MemoryStore_UpsertMismatchedLengths(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	err := s.Upsert(context.Background(), []Candidate{{URL: "u"}}, nil)
	if err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func Test_MemoryStore_DeleteBySite(t *testing.T) {
	t.Parallel()

	s := seedMemoryStore(t)
	if err := s.DeleteBySite(context.Background(), "recipes"); err != nil {
		t.Fatalf("DeleteBySite: %v", err)
	}
	got, err := s.Search(context.Background(), []float32{1, 0, 0}, SiteAll, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Site != "podcasts" {
		t.Fatalf("expected only podcasts to survive, got %+v", got)
	}
}
