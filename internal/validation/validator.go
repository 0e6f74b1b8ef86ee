package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/retrieval"
)

// Validator records reviews and writes the resulting eligibility through to
// the retrieval index, so a rejection takes effect on the next search.
type Validator struct {
	store  Store
	chunks knowledge.Store
	index  retrieval.Index
	logger *slog.Logger
}

// NewValidator wires the validation flow.
func NewValidator(store Store, chunks knowledge.Store, index retrieval.Index, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{store: store, chunks: chunks, index: index, logger: logger}
}

// Validate records a review of the chunk. The overall score is the mean of
// the provided dimension scores; at least one must be given, and each must
// be in [0, 100]. Approval at or above ApprovalThreshold keeps the chunk
// retrievable, rejection revokes it. Later validations supersede earlier
// ones, so a rejected chunk can be re-approved without re-embedding.
func (v *Validator) Validate(ctx context.Context, chunkID uuid.UUID, validator string, scores Scores, notes string) (ContentValidation, error) {
	if strings.TrimSpace(validator) == "" {
		return ContentValidation{}, apperr.New(apperr.InvalidInput, "validator is required")
	}

	provided := scores.provided()
	if len(provided) == 0 {
		return ContentValidation{}, apperr.New(apperr.InvalidInput, "at least one dimension score is required")
	}
	var sum float64
	for _, score := range provided {
		if score < 0 || score > 100 {
			return ContentValidation{}, apperr.New(apperr.InvalidInput, "score %v out of range [0, 100]", score)
		}
		sum += score
	}
	overall := sum / float64(len(provided))

	if _, err := v.chunks.GetChunk(ctx, chunkID); err != nil {
		if errors.Is(err, knowledge.ErrChunkNotFound) {
			return ContentValidation{}, apperr.Wrap(apperr.NotFound, err, "chunk %s", chunkID)
		}
		return ContentValidation{}, fmt.Errorf("load chunk: %w", err)
	}

	status := StatusRejected
	if overall >= ApprovalThreshold {
		status = StatusApproved
	}

	record := ContentValidation{
		ID:        uuid.New(),
		ChunkID:   chunkID,
		Validator: validator,
		Scores:    scores,
		Overall:   overall,
		Status:    status,
		Notes:     notes,
		CreatedAt: time.Now(),
	}
	if err := v.store.Append(ctx, record); err != nil {
		return ContentValidation{}, fmt.Errorf("record validation: %w", err)
	}

	if err := v.chunks.MarkChunkValidated(ctx, chunkID); err != nil {
		return ContentValidation{}, fmt.Errorf("mark chunk validated: %w", err)
	}
	if err := v.index.SetEligibility(ctx, chunkID, status == StatusApproved); err != nil {
		// The audit record exists; eligibility will correct on the next
		// validation or reindex. Surface the inconsistency loudly.
		v.logger.Error("eligibility write-through failed",
			"chunk", chunkID, "status", status, "error", err)
		return ContentValidation{}, fmt.Errorf("update retrieval eligibility: %w", err)
	}

	v.logger.Info("chunk validated",
		"chunk", chunkID, "validator", validator, "overall", overall, "status", status)
	return record, nil
}

// History returns the chunk's full validation trail, oldest first.
func (v *Validator) History(ctx context.Context, chunkID uuid.UUID) ([]ContentValidation, error) {
	return v.store.History(ctx, chunkID)
}
