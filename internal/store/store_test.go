package store

import (
	"context"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "conv-a", "recipes", "spicy pasta"); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := s.Append(ctx, "conv-a", "recipes", "without cream"); err != nil {
		t.Fatalf("append second: %v", err)
	}

	turns, err := s.Recent(ctx, "conv-a", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("want 2 turns, got %d", len(turns))
	}
	if turns[0].Query != "spicy pasta" || turns[0].Site != "recipes" {
		t.Errorf("turn[0]: want spicy pasta/recipes, got %s/%s", turns[0].Query, turns[0].Site)
	}
	if turns[1].Query != "without cream" {
		t.Errorf("turn[1]: want without cream, got %s", turns[1].Query)
	}
}

func Test_Store_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for range 6 {
		if err := s.Append(ctx, "conv-b", "all", "q"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := s.Recent(ctx, "conv-b", 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 4 {
		t.Errorf("want 4 turns, got %d", len(turns))
	}
}

func Test_Store_ConversationIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "conv-x", "all", "from x"); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := s.Append(ctx, "conv-y", "all", "from y"); err != nil {
		t.Fatalf("append y: %v", err)
	}

	turnsX, err := s.Recent(ctx, "conv-x", 10)
	if err != nil {
		t.Fatalf("recent x: %v", err)
	}
	turnsY, err := s.Recent(ctx, "conv-y", 10)
	if err != nil {
		t.Fatalf("recent y: %v", err)
	}

	if len(turnsX) != 1 || turnsX[0].Query != "from x" {
		t.Errorf("conversation x isolation failed: got %v", turnsX)
	}
	if len(turnsY) != 1 || turnsY[0].Query != "from y" {
		t.Errorf("conversation y isolation failed: got %v", turnsY)
	}
}

func Test_Store_EmptyConversationReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	turns, err := s.Recent(ctx, "conv-empty", 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("want 0 turns, got %d", len(turns))
	}
}

func Test_Store_OldestFirstOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	queries := []string{"first", "second", "third"}
	for _, q := range queries {
		if err := s.Append(ctx, "conv-order", "all", q); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Queries(ctx, "conv-order", 10)
	if err != nil {
		t.Fatalf("queries: %v", err)
	}
	for i, want := range queries {
		if got[i] != want {
			t.Errorf("query[%d]: want %q, got %q", i, want, got[i])
		}
	}
}
