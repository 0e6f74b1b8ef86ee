package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/embedding"
	"github.com/rgknow/edurag/internal/log"
	"github.com/rgknow/edurag/internal/retrieval"
)

const testModel = "local-hash-768"

func newTestService(t *testing.T) (*Service, *MemoryStore, *retrieval.MemoryIndex) {
	t.Helper()
	registry := embedding.NewRegistry(log.NewNop())
	registry.Register(embedding.NewLocalEmbedder(testModel, 768))

	store := NewMemoryStore()
	index := retrieval.NewMemoryIndex()
	svc := NewService(store, index, registry, testModel, 200, 40, log.NewNop())
	return svc, store, index
}

func createTestBase(t *testing.T, svc *Service) KnowledgeBase {
	t.Helper()
	kb, err := svc.CreateKnowledgeBase(context.Background(), CreateParams{
		Name:       "Physical Science",
		Subject:    "science",
		Grade:      "8",
		Difficulty: DifficultyIntermediate,
	})
	if err != nil {
		t.Fatalf("CreateKnowledgeBase: %v", err)
	}
	return kb
}

func TestCreateKnowledgeBase_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateParams
		kind   apperr.Kind
	}{
		{"missing name", CreateParams{Subject: "science", Grade: "8", Difficulty: DifficultyBeginner}, apperr.InvalidInput},
		{"missing subject", CreateParams{Name: "x", Grade: "8", Difficulty: DifficultyBeginner}, apperr.InvalidInput},
		{"missing grade", CreateParams{Name: "x", Subject: "science", Difficulty: DifficultyBeginner}, apperr.InvalidInput},
		{"bad difficulty", CreateParams{Name: "x", Subject: "science", Grade: "8", Difficulty: "impossible"}, apperr.InvalidInput},
		{"unregistered model", CreateParams{Name: "x", Subject: "science", Grade: "8", Difficulty: DifficultyBeginner, EmbeddingModel: "nope"}, apperr.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateKnowledgeBase(ctx, tt.params)
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("kind = %v, want %v (err: %v)", apperr.KindOf(err), tt.kind, err)
			}
		})
	}
}

func TestCreateKnowledgeBase_DefaultsModel(t *testing.T) {
	svc, _, _ := newTestService(t)
	kb := createTestBase(t, svc)
	if kb.EmbeddingModel != testModel {
		t.Errorf("model = %q, want service default %q", kb.EmbeddingModel, testModel)
	}
	if len(kb.ChunkIDs) != 0 {
		t.Errorf("new base should own no chunks")
	}
}

func TestCreateKnowledgeBase_StoresMetadata(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	kb, err := svc.CreateKnowledgeBase(ctx, CreateParams{
		Name:        "AP Physics",
		Subject:     "science",
		Grade:       "12",
		Difficulty:  DifficultyExpert,
		ContentType: "lesson",
		Tags:        []string{"mechanics", "exam-prep"},
		OwnerID:     owner,
		IsPublic:    true,
	})
	if err != nil {
		t.Fatalf("CreateKnowledgeBase with expert difficulty: %v", err)
	}

	got, err := store.GetKnowledgeBase(ctx, kb.ID)
	if err != nil {
		t.Fatalf("GetKnowledgeBase: %v", err)
	}
	if got.Difficulty != DifficultyExpert {
		t.Errorf("difficulty = %q, want expert", got.Difficulty)
	}
	if got.ContentType != "lesson" {
		t.Errorf("content type = %q, want lesson", got.ContentType)
	}
	if got.OwnerID != owner {
		t.Errorf("owner = %s, want %s", got.OwnerID, owner)
	}
	if !got.IsPublic {
		t.Error("base should be public")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "mechanics" || got.Tags[1] != "exam-prep" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestProcessContent_ChunksEmbedsAndIndexes(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	kb := createTestBase(t, svc)

	document := strings.Repeat(
		"An object at rest stays at rest unless acted on by a force. This property is called inertia. ", 10)
	chunks, err := svc.ProcessContent(ctx, kb.ID, document, ContentMetadata{
		Concepts:           []string{"force", "inertia"},
		LearningObjectives: []string{"state Newton's first law"},
	})
	if err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	got, err := store.GetKnowledgeBase(ctx, kb.ID)
	if err != nil {
		t.Fatalf("GetKnowledgeBase: %v", err)
	}
	if len(got.ChunkIDs) != len(chunks) {
		t.Errorf("base owns %d chunk ids, want %d", len(got.ChunkIDs), len(chunks))
	}
	for i, chunk := range chunks {
		if got.ChunkIDs[i] != chunk.ID {
			t.Errorf("chunk id %d out of order", i)
		}
		if chunk.Validated {
			t.Error("fresh chunk should not be marked validated")
		}
	}

	// New content is immediately retrievable.
	hits, err := svc.Search(ctx, "why does a book on a table not move", retrieval.Filters{
		KnowledgeBaseIDs: []uuid.UUID{kb.ID},
	}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("freshly processed content not retrievable")
	}
	for _, hit := range hits {
		if hit.Similarity <= 0 {
			t.Errorf("similarity = %v, want > 0", hit.Similarity)
		}
		if hit.Chunk.KnowledgeBaseID != kb.ID {
			t.Error("hit from wrong knowledge base")
		}
	}
}

func TestProcessContent_EmptyDocument(t *testing.T) {
	svc, _, _ := newTestService(t)
	kb := createTestBase(t, svc)

	_, err := svc.ProcessContent(context.Background(), kb.ID, "   ", ContentMetadata{})
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput", apperr.KindOf(err))
	}
}

func TestProcessContent_UnknownBase(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ProcessContent(context.Background(), uuid.New(), "text", ContentMetadata{})
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("kind = %v, want NotFound", apperr.KindOf(err))
	}
}

func TestDeleteKnowledgeBase_Cascades(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	kb := createTestBase(t, svc)

	chunks, err := svc.ProcessContent(ctx, kb.ID,
		strings.Repeat("Friction opposes relative motion between surfaces. ", 10),
		ContentMetadata{Concepts: []string{"friction"}})
	if err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}

	if err := svc.DeleteKnowledgeBase(ctx, kb.ID); err != nil {
		t.Fatalf("DeleteKnowledgeBase: %v", err)
	}

	if _, err := store.GetChunk(ctx, chunks[0].ID); err != ErrChunkNotFound {
		t.Errorf("chunk should be gone with its base, got %v", err)
	}
	if _, err := svc.Search(ctx, "friction", retrieval.Filters{KnowledgeBaseIDs: []uuid.UUID{kb.ID}}, 5); apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("search against deleted base: kind = %v, want NotFound", apperr.KindOf(err))
	}

	// Index rows must be gone too, not just unfindable through the base.
	hits, err := svc.Search(ctx, "friction opposes motion", retrieval.Filters{}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted base's chunks still retrievable: %d hits", len(hits))
	}
}

func TestReindex_SwitchesModel(t *testing.T) {
	svc, store, index := newTestService(t)
	ctx := context.Background()
	kb := createTestBase(t, svc)

	if _, err := svc.ProcessContent(ctx, kb.ID,
		strings.Repeat("Acceleration is the rate of change of velocity. ", 10),
		ContentMetadata{Concepts: []string{"acceleration"}}); err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}

	const newModel = "local-hash-384"
	// Registry must know the target model before migration.
	if err := svc.Reindex(ctx, kb.ID, newModel); apperr.KindOf(err) != apperr.Unavailable {
		t.Fatalf("reindex to unregistered model: kind = %v, want Unavailable", apperr.KindOf(err))
	}

	svc.registry.Register(embedding.NewLocalEmbedder(newModel, 384))
	if err := svc.Reindex(ctx, kb.ID, newModel); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	got, _ := store.GetKnowledgeBase(ctx, kb.ID)
	if got.EmbeddingModel != newModel {
		t.Errorf("model = %q, want %q", got.EmbeddingModel, newModel)
	}

	// Searches under the new model find the re-embedded chunks.
	vec, _ := svc.registry.Embed(ctx, newModel, "rate of change of velocity")
	results, err := index.Search(ctx, vec, newModel, retrieval.Filters{}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Error("no index rows under the new model after reindex")
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Search(context.Background(), "  ", retrieval.Filters{}, 5)
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput", apperr.KindOf(err))
	}
}

func TestSearch_RestrictsToKnowledgeBaseSet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var bases []KnowledgeBase
	for _, name := range []string{"Mechanics", "Optics", "Waves"} {
		kb, err := svc.CreateKnowledgeBase(ctx, CreateParams{
			Name: name, Subject: "science", Grade: "8", Difficulty: DifficultyIntermediate,
		})
		if err != nil {
			t.Fatalf("CreateKnowledgeBase %s: %v", name, err)
		}
		if _, err := svc.ProcessContent(ctx, kb.ID,
			strings.Repeat("Energy is transferred between objects in many forms. ", 10),
			ContentMetadata{Concepts: []string{"energy"}}); err != nil {
			t.Fatalf("ProcessContent %s: %v", name, err)
		}
		bases = append(bases, kb)
	}

	allowed := []uuid.UUID{bases[0].ID, bases[2].ID}
	hits, err := svc.Search(ctx, "how is energy transferred", retrieval.Filters{
		KnowledgeBaseIDs: allowed,
	}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for knowledge base set filter")
	}
	for _, hit := range hits {
		if hit.Chunk.KnowledgeBaseID == bases[1].ID {
			t.Error("hit from a base outside the allowed set")
		}
	}
}

func TestSearch_FiltersBySubject(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	science := createTestBase(t, svc)
	math, err := svc.CreateKnowledgeBase(ctx, CreateParams{
		Name: "Algebra", Subject: "math", Grade: "8", Difficulty: DifficultyBeginner,
	})
	if err != nil {
		t.Fatalf("CreateKnowledgeBase: %v", err)
	}

	if _, err := svc.ProcessContent(ctx, science.ID,
		strings.Repeat("Forces cause objects to accelerate. ", 10),
		ContentMetadata{Concepts: []string{"force"}}); err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}
	if _, err := svc.ProcessContent(ctx, math.ID,
		strings.Repeat("Solve linear equations by isolating the variable. ", 10),
		ContentMetadata{Concepts: []string{"equations"}}); err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}

	hits, err := svc.Search(ctx, "forces and equations", retrieval.Filters{Subject: "math"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for subject filter")
	}
	for _, hit := range hits {
		if hit.Chunk.KnowledgeBaseID != math.ID {
			t.Error("subject filter leaked another subject's chunk")
		}
	}
}
