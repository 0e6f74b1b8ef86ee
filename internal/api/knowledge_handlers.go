package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/retrieval"
)

type createKnowledgeBaseRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Subject        string   `json:"subject"`
	Grade          string   `json:"grade"`
	Difficulty     string   `json:"difficulty"`
	ContentType    string   `json:"content_type"`
	Tags           []string `json:"tags"`
	IsPublic       bool     `json:"is_public"`
	EmbeddingModel string   `json:"embedding_model"`
}

type knowledgeBaseResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Subject        string    `json:"subject"`
	Grade          string    `json:"grade"`
	Difficulty     string    `json:"difficulty"`
	ContentType    string    `json:"content_type,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	OwnerID        uuid.UUID `json:"owner_id"`
	IsPublic       bool      `json:"is_public"`
	EmbeddingModel string    `json:"embedding_model"`
	ChunkCount     int       `json:"chunk_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toKnowledgeBaseResponse(kb knowledge.KnowledgeBase) knowledgeBaseResponse {
	return knowledgeBaseResponse{
		ID:             kb.ID,
		Name:           kb.Name,
		Description:    kb.Description,
		Subject:        kb.Subject,
		Grade:          kb.Grade,
		Difficulty:     string(kb.Difficulty),
		ContentType:    kb.ContentType,
		Tags:           kb.Tags,
		OwnerID:        kb.OwnerID,
		IsPublic:       kb.IsPublic,
		EmbeddingModel: kb.EmbeddingModel,
		ChunkCount:     len(kb.ChunkIDs),
		CreatedAt:      kb.CreatedAt,
		UpdatedAt:      kb.UpdatedAt,
	}
}

func (s *Server) handleCreateKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := LearnerID(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.Unauthorized, "no learner in context"))
		return
	}
	var req createKnowledgeBaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	kb, err := s.knowledge.CreateKnowledgeBase(r.Context(), knowledge.CreateParams{
		Name:           req.Name,
		Description:    req.Description,
		Subject:        req.Subject,
		Grade:          req.Grade,
		Difficulty:     knowledge.Difficulty(req.Difficulty),
		ContentType:    req.ContentType,
		Tags:           req.Tags,
		OwnerID:        ownerID,
		IsPublic:       req.IsPublic,
		EmbeddingModel: req.EmbeddingModel,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toKnowledgeBaseResponse(kb))
}

func (s *Server) handleListKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	bases, err := s.knowledge.ListKnowledgeBases(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]knowledgeBaseResponse, 0, len(bases))
	for _, kb := range bases {
		out = append(out, toKnowledgeBaseResponse(kb))
	}
	writeJSON(w, http.StatusOK, map[string]any{"knowledge_bases": out})
}

func (s *Server) handleGetKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	kb, err := s.knowledge.GetKnowledgeBase(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKnowledgeBaseResponse(kb))
}

type processContentRequest struct {
	Document           string     `json:"document"`
	Concepts           []string   `json:"concepts"`
	LearningObjectives []string   `json:"learning_objectives"`
	Prerequisites      []string   `json:"prerequisites"`
	CourseID           *uuid.UUID `json:"course_id"`
	LessonID           *uuid.UUID `json:"lesson_id"`
}

type chunkResponse struct {
	ID                 uuid.UUID `json:"id"`
	KnowledgeBaseID    uuid.UUID `json:"knowledge_base_id"`
	Content            string    `json:"content"`
	Position           int       `json:"position"`
	Concepts           []string  `json:"concepts,omitempty"`
	LearningObjectives []string  `json:"learning_objectives,omitempty"`
	Prerequisites      []string  `json:"prerequisites,omitempty"`
	Validated          bool      `json:"validated"`
	CreatedAt          time.Time `json:"created_at"`
}

func toChunkResponse(c knowledge.Chunk) chunkResponse {
	return chunkResponse{
		ID:                 c.ID,
		KnowledgeBaseID:    c.KnowledgeBaseID,
		Content:            c.Content,
		Position:           c.Position,
		Concepts:           c.Concepts,
		LearningObjectives: c.LearningObjectives,
		Prerequisites:      c.Prerequisites,
		Validated:          c.Validated,
		CreatedAt:          c.CreatedAt,
	}
}

func (s *Server) handleProcessContent(w http.ResponseWriter, r *http.Request) {
	kbID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req processContentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	chunks, err := s.knowledge.ProcessContent(r.Context(), kbID, req.Document, knowledge.ContentMetadata{
		Concepts:           req.Concepts,
		LearningObjectives: req.LearningObjectives,
		Prerequisites:      req.Prerequisites,
		CourseID:           req.CourseID,
		LessonID:           req.LessonID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]chunkResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, toChunkResponse(c))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chunks": out})
}

type searchRequest struct {
	Query            string      `json:"query"`
	KnowledgeBaseIDs []uuid.UUID `json:"knowledge_base_ids"`
	Subject          string      `json:"subject"`
	Grade            string      `json:"grade"`
	Difficulty       string      `json:"difficulty"`
	Concepts         []string    `json:"concepts"`
	CourseID         *uuid.UUID  `json:"course_id"`
	LessonID         *uuid.UUID  `json:"lesson_id"`
	Limit            int         `json:"limit"`
}

type searchHitResponse struct {
	Chunk      chunkResponse `json:"chunk"`
	Similarity float64       `json:"similarity"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	hits, err := s.knowledge.Search(r.Context(), req.Query, retrieval.Filters{
		KnowledgeBaseIDs: req.KnowledgeBaseIDs,
		Subject:          req.Subject,
		Grade:            req.Grade,
		Difficulty:       req.Difficulty,
		Concepts:         req.Concepts,
		CourseID:         req.CourseID,
		LessonID:         req.LessonID,
	}, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	searchRequests.Inc()

	out := make([]searchHitResponse, 0, len(hits))
	for _, hit := range hits {
		out = append(out, searchHitResponse{Chunk: toChunkResponse(hit.Chunk), Similarity: hit.Similarity})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}
