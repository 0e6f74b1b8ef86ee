package learnpath

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/retrieval"
)

const (
	// Recommendation score weights: relevance to the learner's weak spots
	// dominates, freshness breaks near-ties.
	similarityWeight = 0.7
	recencyWeight    = 0.3

	// recencyHalfLife is the content age at which the recency component
	// halves.
	recencyHalfLife = 30 * 24 * time.Hour

	DefaultRecommendations = 5
	maxRecommendations     = 20
)

// Searcher runs a similarity search. *knowledge.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, filters retrieval.Filters, limit int) ([]knowledge.SearchHit, error)
}

// Recommender suggests review content targeted at a learner's weak
// concepts.
type Recommender struct {
	search Searcher
	logger *slog.Logger
}

// NewRecommender creates a Recommender.
func NewRecommender(search Searcher, logger *slog.Logger) *Recommender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recommender{search: search, logger: logger}
}

// Recommend scores content for the learner. The query is built from the
// profile's weak concepts, falling back to a subject-level review query when
// none are recorded. Score = 0.7*similarity + 0.3*recency; recency decays
// exponentially with content age.
func (r *Recommender) Recommend(ctx context.Context, profile LearnerProfile, limit int) ([]Recommendation, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecommendations
	case limit > maxRecommendations:
		limit = maxRecommendations
	}

	query, reason := recommendQuery(profile)
	if query == "" {
		return nil, apperr.New(apperr.InvalidInput, "profile has no subject or weak concepts to recommend from")
	}

	filters := retrieval.Filters{Subject: profile.Subject, Grade: profile.Grade}

	// Over-fetch so re-scoring by recency has room to reorder.
	hits, err := r.search.Search(ctx, query, filters, limit*2)
	if err != nil {
		return nil, fmt.Errorf("search for recommendations: %w", err)
	}

	now := time.Now()
	recs := make([]Recommendation, 0, len(hits))
	for _, hit := range hits {
		recency := recencyScore(now.Sub(hit.Chunk.CreatedAt))
		recs = append(recs, Recommendation{
			ChunkID:    hit.Chunk.ID,
			Similarity: hit.Similarity,
			Recency:    recency,
			Score:      similarityWeight*hit.Similarity + recencyWeight*recency,
			Reason:     reason,
		})
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > limit {
		recs = recs[:limit]
	}

	r.logger.Debug("recommendations computed",
		"learner", profile.LearnerID, "results", len(recs), "reason", reason)
	return recs, nil
}

// recommendQuery derives the search text and a human-readable reason.
func recommendQuery(profile LearnerProfile) (query, reason string) {
	if len(profile.WeakConcepts) > 0 {
		return strings.Join(profile.WeakConcepts, " "),
			"review of weak concepts: " + strings.Join(profile.WeakConcepts, ", ")
	}
	if profile.Subject != "" {
		parts := []string{profile.Subject, "review"}
		if profile.Grade != "" {
			parts = append([]string{"grade", profile.Grade}, parts...)
		}
		return strings.Join(parts, " "), "general review for " + profile.Subject
	}
	return "", ""
}

// recencyScore maps content age to (0, 1], halving every recencyHalfLife.
func recencyScore(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(recencyHalfLife))
}
