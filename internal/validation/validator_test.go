package validation

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/embedding"
	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/log"
	"github.com/rgknow/edurag/internal/retrieval"
)

func ptr(f float64) *float64 { return &f }

type fixture struct {
	validator *Validator
	chunks    *knowledge.MemoryStore
	index     *retrieval.MemoryIndex
	chunkID   uuid.UUID
	kbID      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	chunks := knowledge.NewMemoryStore()
	index := retrieval.NewMemoryIndex()

	kbID := uuid.New()
	if err := chunks.CreateKnowledgeBase(ctx, knowledge.KnowledgeBase{ID: kbID}); err != nil {
		t.Fatalf("CreateKnowledgeBase: %v", err)
	}
	chunkID := uuid.New()
	err := chunks.AddChunks(ctx, kbID, []knowledge.Chunk{{
		ID: chunkID, KnowledgeBaseID: kbID, Content: "Inertia resists changes in motion.",
	}})
	if err != nil {
		t.Fatalf("AddChunks: %v", err)
	}
	err = index.Upsert(ctx, retrieval.Embedding{
		ChunkID:         chunkID,
		KnowledgeBaseID: kbID,
		Vector:          embedding.Vector{1, 0, 0},
		Model:           "local-hash-768",
		Eligible:        true,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	return &fixture{
		validator: NewValidator(NewMemoryStore(), chunks, index, log.NewNop()),
		chunks:    chunks,
		index:     index,
		chunkID:   chunkID,
		kbID:      kbID,
	}
}

func (f *fixture) retrievable(t *testing.T) bool {
	t.Helper()
	results, err := f.index.Search(context.Background(),
		embedding.Vector{1, 0, 0}, "local-hash-768", retrieval.Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	return len(results) > 0
}

func TestValidate_OverallIsMeanOfProvided(t *testing.T) {
	tests := []struct {
		name        string
		scores      Scores
		wantOverall float64
		wantStatus  Status
	}{
		{
			"all four dimensions",
			Scores{Accuracy: ptr(90), Relevance: ptr(80), Appropriateness: ptr(70), Clarity: ptr(100)},
			85, StatusApproved,
		},
		{
			"subset of dimensions",
			Scores{Accuracy: ptr(60), Clarity: ptr(90)},
			75, StatusRejected,
		},
		{
			"single dimension",
			Scores{Appropriateness: ptr(82)},
			82, StatusApproved,
		},
		{
			"threshold exactly approves",
			Scores{Accuracy: ptr(80)},
			80, StatusApproved,
		},
		{
			"just under threshold rejects",
			Scores{Accuracy: ptr(79.9)},
			79.9, StatusRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			record, err := f.validator.Validate(context.Background(), f.chunkID, "dr-chen", tt.scores, "")
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if record.Overall != tt.wantOverall {
				t.Errorf("overall = %v, want %v", record.Overall, tt.wantOverall)
			}
			if record.Status != tt.wantStatus {
				t.Errorf("status = %v, want %v", record.Status, tt.wantStatus)
			}
		})
	}
}

func TestValidate_InputErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		chunkID   uuid.UUID
		validator string
		scores    Scores
		kind      apperr.Kind
	}{
		{"no scores", f.chunkID, "dr-chen", Scores{}, apperr.InvalidInput},
		{"score above range", f.chunkID, "dr-chen", Scores{Accuracy: ptr(101)}, apperr.InvalidInput},
		{"score below range", f.chunkID, "dr-chen", Scores{Clarity: ptr(-1)}, apperr.InvalidInput},
		{"missing validator", f.chunkID, "  ", Scores{Accuracy: ptr(90)}, apperr.InvalidInput},
		{"unknown chunk", uuid.New(), "dr-chen", Scores{Accuracy: ptr(90)}, apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.validator.Validate(ctx, tt.chunkID, tt.validator, tt.scores, "")
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("kind = %v, want %v (err: %v)", apperr.KindOf(err), tt.kind, err)
			}
		})
	}
}

func TestValidate_RejectionRevokesRetrieval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if !f.retrievable(t) {
		t.Fatal("chunk should start retrievable")
	}

	if _, err := f.validator.Validate(ctx, f.chunkID, "dr-chen", Scores{Accuracy: ptr(40)}, "wrong formula"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if f.retrievable(t) {
		t.Error("rejected chunk still retrievable")
	}

	// Re-approval restores eligibility without touching the vector.
	if _, err := f.validator.Validate(ctx, f.chunkID, "dr-osei", Scores{Accuracy: ptr(95)}, "fixed"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !f.retrievable(t) {
		t.Error("re-approved chunk not retrievable")
	}
}

func TestValidate_AppendsAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.validator.Validate(ctx, f.chunkID, "dr-chen", Scores{Accuracy: ptr(40)}, "first pass"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := f.validator.Validate(ctx, f.chunkID, "dr-osei", Scores{Accuracy: ptr(90)}, "second pass"); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	history, err := f.validator.History(ctx, f.chunkID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Validator != "dr-chen" || history[1].Validator != "dr-osei" {
		t.Error("history out of order")
	}
	if history[0].Status != StatusRejected || history[1].Status != StatusApproved {
		t.Error("history statuses wrong")
	}

	chunk, err := f.chunks.GetChunk(ctx, f.chunkID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if !chunk.Validated {
		t.Error("chunk not marked validated")
	}
}
