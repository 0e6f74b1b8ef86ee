package learnpath

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/log"
	"github.com/rgknow/edurag/internal/retrieval"
)

type fakeSearcher struct {
	hits      []knowledge.SearchHit
	lastQuery string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ retrieval.Filters, _ int) ([]knowledge.SearchHit, error) {
	f.lastQuery = query
	return f.hits, nil
}

func hit(similarity float64, age time.Duration) knowledge.SearchHit {
	return knowledge.SearchHit{
		Chunk:      knowledge.Chunk{ID: uuid.New(), CreatedAt: time.Now().Add(-age)},
		Similarity: similarity,
	}
}

func TestRecommend_QueryFromWeakConcepts(t *testing.T) {
	search := &fakeSearcher{hits: []knowledge.SearchHit{hit(0.9, time.Hour)}}
	r := NewRecommender(search, log.NewNop())

	p := profile()
	p.WeakConcepts = []string{"fractions", "decimals"}
	recs, err := r.Recommend(context.Background(), p, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	if search.lastQuery != "fractions decimals" {
		t.Errorf("query = %q, want weak concepts", search.lastQuery)
	}
	if len(recs) != 1 {
		t.Fatalf("recs = %d, want 1", len(recs))
	}
	if !strings.Contains(recs[0].Reason, "fractions") {
		t.Errorf("reason should name the weak concepts: %q", recs[0].Reason)
	}
}

func TestRecommend_FallsBackToSubjectReview(t *testing.T) {
	search := &fakeSearcher{hits: []knowledge.SearchHit{hit(0.5, time.Hour)}}
	r := NewRecommender(search, log.NewNop())

	recs, err := r.Recommend(context.Background(), profile(), 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if !strings.Contains(search.lastQuery, "math") {
		t.Errorf("fallback query should use the subject: %q", search.lastQuery)
	}
	if len(recs) != 1 {
		t.Errorf("recs = %d, want 1", len(recs))
	}
}

func TestRecommend_EmptyProfile(t *testing.T) {
	r := NewRecommender(&fakeSearcher{}, log.NewNop())
	_, err := r.Recommend(context.Background(), LearnerProfile{LearnerID: uuid.New()}, 5)
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput", apperr.KindOf(err))
	}
}

func TestRecommend_ScoreBlendsSimilarityAndRecency(t *testing.T) {
	// Slightly less similar but much fresher content should outrank stale
	// content when similarities are close.
	fresh := hit(0.80, time.Hour)
	stale := hit(0.82, 120*24*time.Hour)
	search := &fakeSearcher{hits: []knowledge.SearchHit{stale, fresh}}
	r := NewRecommender(search, log.NewNop())

	p := profile()
	p.WeakConcepts = []string{"fractions"}
	recs, err := r.Recommend(context.Background(), p, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("recs = %d, want 2", len(recs))
	}
	if recs[0].ChunkID != fresh.Chunk.ID {
		t.Error("fresh content should outrank slightly-more-similar stale content")
	}
	for _, rec := range recs {
		want := similarityWeight*rec.Similarity + recencyWeight*rec.Recency
		if diff := rec.Score - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("score = %v, want %v", rec.Score, want)
		}
	}
}

func TestRecommend_LimitClamps(t *testing.T) {
	var hits []knowledge.SearchHit
	for range 30 {
		hits = append(hits, hit(0.5, time.Hour))
	}
	search := &fakeSearcher{hits: hits}
	r := NewRecommender(search, log.NewNop())

	p := profile()
	p.WeakConcepts = []string{"fractions"}

	recs, err := r.Recommend(context.Background(), p, 100)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != maxRecommendations {
		t.Errorf("recs = %d, want clamp to %d", len(recs), maxRecommendations)
	}

	recs, _ = r.Recommend(context.Background(), p, 0)
	if len(recs) != DefaultRecommendations {
		t.Errorf("recs = %d, want default %d", len(recs), DefaultRecommendations)
	}
}
