package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/embedding"
)

const testModel = "local-hash-768"

// unit returns a 3-dimensional unit vector for ranking tests.
func unit(x, y, z float32) embedding.Vector {
	return embedding.Normalize(embedding.Vector{x, y, z})
}

func seedRow(t *testing.T, idx *MemoryIndex, emb Embedding) Embedding {
	t.Helper()
	if emb.ChunkID == (uuid.UUID{}) {
		emb.ChunkID = uuid.New()
	}
	if emb.KnowledgeBaseID == (uuid.UUID{}) {
		emb.KnowledgeBaseID = uuid.New()
	}
	if emb.Model == "" {
		emb.Model = testModel
	}
	if emb.Vector == nil {
		emb.Vector = unit(1, 0, 0)
	}
	if err := idx.Upsert(context.Background(), emb); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return emb
}

func TestMemoryIndex_RankingAndSimilarityRange(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	exact := seedRow(t, idx, Embedding{Vector: unit(1, 0, 0), Eligible: true})
	near := seedRow(t, idx, Embedding{Vector: unit(1, 1, 0), Eligible: true})
	opposite := seedRow(t, idx, Embedding{Vector: unit(-1, 0, 0), Eligible: true})

	results, err := idx.Search(ctx, unit(1, 0, 0), testModel, Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	wantOrder := []uuid.UUID{exact.ChunkID, near.ChunkID, opposite.ChunkID}
	for i, want := range wantOrder {
		if results[i].ChunkID != want {
			t.Errorf("position %d: got %s, want %s", i, results[i].ChunkID, want)
		}
	}

	for _, res := range results {
		if res.Similarity < 0 || res.Similarity > 1 {
			t.Errorf("similarity %v out of [0, 1]", res.Similarity)
		}
	}
	if got := results[0].Similarity; got < 0.999 {
		t.Errorf("identical vector similarity = %v, want ~1", got)
	}
	if got := results[2].Similarity; got > 0.001 {
		t.Errorf("opposite vector similarity = %v, want ~0", got)
	}
}

func TestMemoryIndex_TieBreakNewestFirst(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	older := seedRow(t, idx, Embedding{
		Vector: unit(1, 0, 0), Eligible: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	newer := seedRow(t, idx, Embedding{
		Vector: unit(1, 0, 0), Eligible: true,
		CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	results, err := idx.Search(ctx, unit(1, 0, 0), testModel, Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ChunkID != newer.ChunkID || results[1].ChunkID != older.ChunkID {
		t.Errorf("equal scores should order newest first, got %v then %v",
			results[0].ChunkID, results[1].ChunkID)
	}
}

func TestMemoryIndex_EligibilityGate(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	kept := seedRow(t, idx, Embedding{Eligible: true})
	rejected := seedRow(t, idx, Embedding{Eligible: true})

	if err := idx.SetEligibility(ctx, rejected.ChunkID, false); err != nil {
		t.Fatalf("SetEligibility: %v", err)
	}

	results, err := idx.Search(ctx, unit(1, 0, 0), testModel, Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != kept.ChunkID {
		t.Fatalf("rejected chunk must not be retrievable, got %v", results)
	}

	// Re-approval restores it without re-embedding.
	if err := idx.SetEligibility(ctx, rejected.ChunkID, true); err != nil {
		t.Fatalf("SetEligibility: %v", err)
	}
	results, _ = idx.Search(ctx, unit(1, 0, 0), testModel, Filters{}, 10)
	if len(results) != 2 {
		t.Errorf("re-approved chunk should return, got %d results", len(results))
	}
}

func TestMemoryIndex_SetEligibilityUnknownChunk(t *testing.T) {
	idx := NewMemoryIndex()
	err := idx.SetEligibility(context.Background(), uuid.New(), false)
	if err != ErrEmbeddingNotFound {
		t.Errorf("got %v, want ErrEmbeddingNotFound", err)
	}
}

func TestMemoryIndex_ModelIsolation(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	seedRow(t, idx, Embedding{Model: "local-hash-768", Eligible: true})
	seedRow(t, idx, Embedding{Model: "text-embedding-004", Eligible: true})

	results, err := idx.Search(ctx, unit(1, 0, 0), "local-hash-768", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("search must only consider rows of the query's model, got %d", len(results))
	}
}

func TestMemoryIndex_Filters(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	kbScience := uuid.New()
	kbMath := uuid.New()
	course := uuid.New()

	physics := seedRow(t, idx, Embedding{
		KnowledgeBaseID: kbScience, Eligible: true,
		Subject: "science", Grade: "8", Difficulty: "intermediate",
		Concepts: []string{"force", "inertia"},
		CourseID: &course,
	})
	algebra := seedRow(t, idx, Embedding{
		KnowledgeBaseID: kbMath, Eligible: true,
		Subject: "math", Grade: "8", Difficulty: "beginner",
		Concepts: []string{"equations"},
	})

	tests := []struct {
		name    string
		filters Filters
		want    []uuid.UUID
	}{
		{"no filters", Filters{}, []uuid.UUID{physics.ChunkID, algebra.ChunkID}},
		{"by knowledge base", Filters{KnowledgeBaseIDs: []uuid.UUID{kbScience}}, []uuid.UUID{physics.ChunkID}},
		{"by knowledge base set", Filters{KnowledgeBaseIDs: []uuid.UUID{kbScience, kbMath}}, []uuid.UUID{physics.ChunkID, algebra.ChunkID}},
		{"by knowledge base set excludes", Filters{KnowledgeBaseIDs: []uuid.UUID{uuid.New()}}, nil},
		{"by subject", Filters{Subject: "math"}, []uuid.UUID{algebra.ChunkID}},
		{"by grade matches both", Filters{Grade: "8"}, []uuid.UUID{physics.ChunkID, algebra.ChunkID}},
		{"by difficulty", Filters{Difficulty: "intermediate"}, []uuid.UUID{physics.ChunkID}},
		{"by concept overlap", Filters{Concepts: []string{"inertia", "momentum"}}, []uuid.UUID{physics.ChunkID}},
		{"by course", Filters{CourseID: &course}, []uuid.UUID{physics.ChunkID}},
		{"conjunction", Filters{Subject: "science", Difficulty: "beginner"}, nil},
		{"no concept overlap", Filters{Concepts: []string{"photosynthesis"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := idx.Search(ctx, unit(1, 0, 0), testModel, tt.filters, 10)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(results) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.want))
			}
			got := make(map[uuid.UUID]bool, len(results))
			for _, res := range results {
				got[res.ChunkID] = true
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("missing expected chunk %s", id)
				}
			}
		})
	}
}

func TestMemoryIndex_DeleteByKnowledgeBase(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	kb := uuid.New()
	seedRow(t, idx, Embedding{KnowledgeBaseID: kb, Eligible: true})
	other := seedRow(t, idx, Embedding{Eligible: true})

	if err := idx.DeleteByKnowledgeBase(ctx, kb); err != nil {
		t.Fatalf("DeleteByKnowledgeBase: %v", err)
	}

	results, _ := idx.Search(ctx, unit(1, 0, 0), testModel, Filters{}, 10)
	if len(results) != 1 || results[0].ChunkID != other.ChunkID {
		t.Errorf("only the other knowledge base's row should remain, got %v", results)
	}
}

func TestMemoryIndex_TouchConcurrent(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	row := seedRow(t, idx, Embedding{Eligible: true})

	const workers = 8
	const touchesPerWorker = 25
	done := make(chan struct{})
	for range workers {
		go func() {
			defer func() { done <- struct{}{} }()
			for range touchesPerWorker {
				_ = idx.Touch(ctx, []uuid.UUID{row.ChunkID})
			}
		}()
	}
	for range workers {
		<-done
	}

	idx.mu.RLock()
	got := idx.rows[row.ChunkID][testModel].UsageCount
	lastUsed := idx.rows[row.ChunkID][testModel].LastUsedAt
	idx.mu.RUnlock()

	if got != workers*touchesPerWorker {
		t.Errorf("usage count = %d, want %d", got, workers*touchesPerWorker)
	}
	if lastUsed == nil {
		t.Error("last used timestamp not set")
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	row := seedRow(t, idx, Embedding{Vector: unit(1, 0, 0), Eligible: true, Subject: "science"})
	row.Vector = unit(0, 1, 0)
	row.Subject = "math"
	if err := idx.Upsert(ctx, row); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, _ := idx.Search(ctx, unit(0, 1, 0), testModel, Filters{Subject: "math"}, 10)
	if len(results) != 1 || results[0].Similarity < 0.999 {
		t.Errorf("upsert should replace vector and metadata, got %v", results)
	}
	if stale, _ := idx.Search(ctx, unit(0, 1, 0), testModel, Filters{Subject: "science"}, 10); len(stale) != 0 {
		t.Error("stale metadata still matches after upsert")
	}
}
