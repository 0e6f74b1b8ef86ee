package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/tutor"
)

type startSessionRequest struct {
	Personality     string     `json:"personality"`
	Type            string     `json:"type"`
	KnowledgeBaseID *uuid.UUID `json:"knowledge_base_id"`
	Subject         string     `json:"subject"`
	Grade           string     `json:"grade"`
	CourseID        *uuid.UUID `json:"course_id"`
	LessonID        *uuid.UUID `json:"lesson_id"`
}

type sessionResponse struct {
	ID              uuid.UUID  `json:"id"`
	LearnerID       uuid.UUID  `json:"learner_id"`
	Personality     string     `json:"personality"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	KnowledgeBaseID *uuid.UUID `json:"knowledge_base_id,omitempty"`
	Subject         string     `json:"subject,omitempty"`
	Grade           string     `json:"grade,omitempty"`
	QuestionCount   int        `json:"question_count"`
	RetrievalCount  int        `json:"retrieval_count"`
	HelpfulCount    int        `json:"helpful_count"`
	NotHelpfulCount int        `json:"not_helpful_count"`
	StartedAt       time.Time  `json:"started_at"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

func toSessionResponse(s tutor.Session) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		LearnerID:       s.LearnerID,
		Personality:     string(s.Personality),
		Type:            string(s.Type),
		Status:          string(s.Status),
		KnowledgeBaseID: s.Scope.KnowledgeBaseID,
		Subject:         s.Scope.Subject,
		Grade:           s.Scope.Grade,
		QuestionCount:   s.QuestionCount,
		RetrievalCount:  s.RetrievalCount,
		HelpfulCount:    s.HelpfulCount,
		NotHelpfulCount: s.NotHelpfulCount,
		StartedAt:       s.StartedAt,
		LastActivityAt:  s.LastActivityAt,
		EndedAt:         s.EndedAt,
	}
}

type retrievedChunkResponse struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	Similarity float64   `json:"similarity"`
}

type interactionResponse struct {
	ID              uuid.UUID                `json:"id"`
	Sequence        int                      `json:"sequence"`
	Query           string                   `json:"query"`
	RewrittenQuery  string                   `json:"rewritten_query,omitempty"`
	Response        string                   `json:"response"`
	RetrievedChunks []retrievedChunkResponse `json:"retrieved_chunks,omitempty"`
	ContextScore    float64                  `json:"context_score"`
	LatencyMS       int64                    `json:"latency_ms"`
	Feedback        string                   `json:"feedback,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

func toInteractionResponse(turn tutor.Interaction) interactionResponse {
	out := interactionResponse{
		ID:             turn.ID,
		Sequence:       turn.Sequence,
		Query:          turn.Query,
		RewrittenQuery: turn.RewrittenQuery,
		Response:       turn.Response,
		ContextScore:   turn.ContextScore,
		LatencyMS:      turn.Latency.Milliseconds(),
		CreatedAt:      turn.CreatedAt,
	}
	for _, rc := range turn.RetrievedChunks {
		out.RetrievedChunks = append(out.RetrievedChunks, retrievedChunkResponse{
			ChunkID: rc.ChunkID, Similarity: rc.Similarity,
		})
	}
	if turn.Feedback != nil {
		out.Feedback = string(*turn.Feedback)
	}
	return out
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := LearnerID(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Unauthorized, "no learner in context"))
		return
	}
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.manager.Start(r.Context(), tutor.StartParams{
		LearnerID:   learnerID,
		Personality: tutor.Personality(req.Personality),
		Type:        tutor.SessionType(req.Type),
		Scope: tutor.Scope{
			KnowledgeBaseID: req.KnowledgeBaseID,
			Subject:         req.Subject,
			Grade:           req.Grade,
			CourseID:        req.CourseID,
			LessonID:        req.LessonID,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// ownedSession loads the session and enforces that it belongs to the
// authenticated learner. Educators may access any session.
func (s *Server) ownedSession(r *http.Request) (tutor.Session, error) {
	id, err := pathUUID(r, "id")
	if err != nil {
		return tutor.Session{}, err
	}
	session, err := s.manager.Get(r.Context(), id)
	if err != nil {
		return tutor.Session{}, err
	}
	learnerID, _ := LearnerID(r.Context())
	if session.LearnerID != learnerID && Role(r.Context()) != RoleEducator {
		return tutor.Session{}, apperr.New(apperr.Unauthorized, "session belongs to another learner")
	}
	return session, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.ownedSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.manager.History(r.Context(), session.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	turns := make([]interactionResponse, 0, len(history))
	for _, turn := range history {
		turns = append(turns, toInteractionResponse(turn))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":      toSessionResponse(session),
		"interactions": turns,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.ownedSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ended, err := s.manager.End(r.Context(), session.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(ended))
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	session, err := s.ownedSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	turn, err := s.responder.Respond(r.Context(), session.ID, req.Query)
	tutorTurns.WithLabelValues(turnOutcome(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInteractionResponse(turn))
}

// turnOutcome buckets a tutor turn for metrics.
func turnOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperr.KindOf(err) {
	case apperr.InvalidInput:
		return "rejected"
	case apperr.Conflict:
		return "conflict"
	case apperr.Unavailable:
		return "failed"
	default:
		return "error"
	}
}

type feedbackRequest struct {
	InteractionID uuid.UUID `json:"interaction_id"`
	Feedback      string    `json:"feedback"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	session, err := s.ownedSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.manager.Feedback(r.Context(), session.ID, req.InteractionID, tutor.Feedback(req.Feedback)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
