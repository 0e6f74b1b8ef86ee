// Package validation records expert reviews of content chunks and derives
// their retrieval eligibility. Validations are an append-only audit trail;
// the most recent one decides whether a chunk may be retrieved.
package validation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of one validation.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ApprovalThreshold is the minimum overall score for approval. Scores are
// on a 0-100 scale; the threshold itself approves.
const ApprovalThreshold = 80.0

// Scores holds the per-dimension ratings a validator assigned. Each is
// optional; nil means the dimension was not assessed.
type Scores struct {
	Accuracy        *float64
	Relevance       *float64
	Appropriateness *float64
	Clarity         *float64
}

// provided returns the non-nil scores.
func (s Scores) provided() []float64 {
	var vals []float64
	for _, p := range []*float64{s.Accuracy, s.Relevance, s.Appropriateness, s.Clarity} {
		if p != nil {
			vals = append(vals, *p)
		}
	}
	return vals
}

// ContentValidation is one recorded review of a chunk.
type ContentValidation struct {
	ID        uuid.UUID
	ChunkID   uuid.UUID
	Validator string
	Scores    Scores

	// Overall is the mean of the provided dimension scores.
	Overall float64
	Status  Status
	Notes   string

	CreatedAt time.Time
}
