package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/learnpath"
)

type learningPathRequest struct {
	KnowledgeBaseID  uuid.UUID `json:"knowledge_base_id"`
	TargetObjectives []string  `json:"target_objectives"`
	KnownConcepts    []string  `json:"known_concepts"`
	BudgetMinutes    int       `json:"budget_minutes"`
}

type stepResponse struct {
	Order            int         `json:"order"`
	Objective        string      `json:"objective"`
	ChunkIDs         []uuid.UUID `json:"chunk_ids"`
	Concepts         []string    `json:"concepts,omitempty"`
	EstimatedMinutes int         `json:"estimated_minutes"`
}

type learningPathResponse struct {
	ID                uuid.UUID      `json:"id"`
	LearnerID         uuid.UUID      `json:"learner_id"`
	KnowledgeBaseID   uuid.UUID      `json:"knowledge_base_id"`
	TargetObjectives  []string       `json:"target_objectives"`
	Steps             []stepResponse `json:"steps"`
	TotalMinutes      int            `json:"total_minutes"`
	AssumedBackground []string       `json:"assumed_background,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (s *Server) handleLearningPath(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := LearnerID(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Unauthorized, "no learner in context"))
		return
	}
	var req learningPathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	path, err := s.paths.GenerateLearningPath(r.Context(), req.KnowledgeBaseID, learnpath.LearnerProfile{
		LearnerID:     learnerID,
		KnownConcepts: req.KnownConcepts,
	}, req.TargetObjectives, req.BudgetMinutes)
	if err != nil {
		writeError(w, err)
		return
	}

	out := learningPathResponse{
		ID:                path.ID,
		LearnerID:         path.LearnerID,
		KnowledgeBaseID:   path.KnowledgeBaseID,
		TargetObjectives:  path.TargetObjectives,
		Steps:             make([]stepResponse, 0, len(path.Steps)),
		TotalMinutes:      path.TotalMinutes,
		AssumedBackground: path.AssumedBackground,
		CreatedAt:         path.CreatedAt,
	}
	for _, step := range path.Steps {
		out.Steps = append(out.Steps, stepResponse{
			Order:            step.Order,
			Objective:        step.Objective,
			ChunkIDs:         step.ChunkIDs,
			Concepts:         step.Concepts,
			EstimatedMinutes: step.EstimatedMinutes,
		})
	}
	writeJSON(w, http.StatusCreated, out)
}

type recommendationResponse struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	Score      float64   `json:"score"`
	Similarity float64   `json:"similarity"`
	Recency    float64   `json:"recency"`
	Reason     string    `json:"reason"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := LearnerID(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Unauthorized, "no learner in context"))
		return
	}
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidInput, err, "invalid limit"))
		return
	}

	recs, err := s.recommender.Recommend(r.Context(), learnpath.LearnerProfile{
		LearnerID:    learnerID,
		Subject:      q.Get("subject"),
		Grade:        q.Get("grade"),
		WeakConcepts: queryList(q.Get("weak_concepts")),
	}, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]recommendationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recommendationResponse{
			ChunkID:    rec.ChunkID,
			Score:      rec.Score,
			Similarity: rec.Similarity,
			Recency:    rec.Recency,
			Reason:     rec.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": out})
}

// queryInt parses an optional positive integer query parameter; empty means 0.
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// queryList splits a comma-separated query parameter, dropping blanks.
func queryList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
