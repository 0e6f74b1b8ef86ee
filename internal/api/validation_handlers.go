package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/validation"
)

type validateRequest struct {
	Validator       string   `json:"validator"`
	Accuracy        *float64 `json:"accuracy"`
	Relevance       *float64 `json:"relevance"`
	Appropriateness *float64 `json:"appropriateness"`
	Clarity         *float64 `json:"clarity"`
	Notes           string   `json:"notes"`
}

type validationResponse struct {
	ID              uuid.UUID `json:"id"`
	ChunkID         uuid.UUID `json:"chunk_id"`
	Validator       string    `json:"validator"`
	Accuracy        *float64  `json:"accuracy,omitempty"`
	Relevance       *float64  `json:"relevance,omitempty"`
	Appropriateness *float64  `json:"appropriateness,omitempty"`
	Clarity         *float64  `json:"clarity,omitempty"`
	Overall         float64   `json:"overall"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toValidationResponse(v validation.ContentValidation) validationResponse {
	return validationResponse{
		ID:              v.ID,
		ChunkID:         v.ChunkID,
		Validator:       v.Validator,
		Accuracy:        v.Scores.Accuracy,
		Relevance:       v.Scores.Relevance,
		Appropriateness: v.Scores.Appropriateness,
		Clarity:         v.Scores.Clarity,
		Overall:         v.Overall,
		Status:          string(v.Status),
		Notes:           v.Notes,
		CreatedAt:       v.CreatedAt,
	}
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	chunkID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.validator.Validate(r.Context(), chunkID, req.Validator, validation.Scores{
		Accuracy:        req.Accuracy,
		Relevance:       req.Relevance,
		Appropriateness: req.Appropriateness,
		Clarity:         req.Clarity,
	}, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toValidationResponse(result))
}

func (s *Server) handleValidationHistory(w http.ResponseWriter, r *http.Request) {
	chunkID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.validator.History(r.Context(), chunkID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]validationResponse, 0, len(history))
	for _, v := range history {
		out = append(out, toValidationResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"validations": out})
}
