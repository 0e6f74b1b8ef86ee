// Package retrieval ranks embedded content chunks against learner queries by
// vector similarity, with metadata filtering and eligibility gating.
//
// The package stores denormalized copies of chunk metadata alongside each
// vector so a search never joins back to the content store. Two index
// implementations exist: an in-memory index for tests and single-process
// deployments, and a pgvector-backed index for production.
package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/embedding"
)

// ErrEmbeddingNotFound indicates no index entry exists for the chunk.
var ErrEmbeddingNotFound = errors.New("embedding not found")

// Embedding is one index row: a vector plus denormalized chunk metadata used
// for filtering without consulting the content store.
type Embedding struct {
	ChunkID         uuid.UUID
	KnowledgeBaseID uuid.UUID
	Vector          embedding.Vector
	Model           string

	// Denormalized filter fields, copied from the chunk at index time.
	Subject    string
	Grade      string
	Difficulty string
	Concepts   []string
	CourseID   *uuid.UUID
	LessonID   *uuid.UUID

	// Eligible reflects the chunk's latest validation outcome. Rejected
	// chunks stay indexed but are never returned by Search.
	Eligible bool

	CreatedAt  time.Time
	UsageCount int64
	LastUsedAt *time.Time
}

// Filters narrows a search. Zero-valued fields do not constrain.
type Filters struct {
	KnowledgeBaseIDs []uuid.UUID // restrict to this set of bases
	Subject          string
	Grade            string
	Difficulty       string
	Concepts         []string // matches rows sharing at least one concept
	CourseID         *uuid.UUID
	LessonID         *uuid.UUID
}

// Result is one ranked hit. Similarity is in [0, 1], higher is closer.
type Result struct {
	ChunkID         uuid.UUID
	KnowledgeBaseID uuid.UUID
	Similarity      float64
}

// Index stores embedding rows and answers similarity searches.
type Index interface {
	// Upsert inserts or replaces the row for its chunk and model.
	Upsert(ctx context.Context, emb Embedding) error

	// Delete removes all rows for the chunk, across models.
	Delete(ctx context.Context, chunkID uuid.UUID) error

	// DeleteByKnowledgeBase removes all rows belonging to the knowledge base.
	DeleteByKnowledgeBase(ctx context.Context, kbID uuid.UUID) error

	// SetEligibility flips the retrieval gate for a chunk's rows.
	SetEligibility(ctx context.Context, chunkID uuid.UUID, eligible bool) error

	// Search returns up to limit eligible rows of the given model matching
	// the filters, ordered by similarity descending.
	Search(ctx context.Context, query embedding.Vector, model string, filters Filters, limit int) ([]Result, error)

	// Touch records retrieval usage for the chunks.
	Touch(ctx context.Context, chunkIDs []uuid.UUID) error
}

// matches reports whether a row passes the filters. Eligibility and model are
// checked by the caller.
func (f Filters) matches(e *Embedding) bool {
	if len(f.KnowledgeBaseIDs) > 0 && !containsID(f.KnowledgeBaseIDs, e.KnowledgeBaseID) {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.Grade != "" && e.Grade != f.Grade {
		return false
	}
	if f.Difficulty != "" && e.Difficulty != f.Difficulty {
		return false
	}
	if f.CourseID != nil && (e.CourseID == nil || *e.CourseID != *f.CourseID) {
		return false
	}
	if f.LessonID != nil && (e.LessonID == nil || *e.LessonID != *f.LessonID) {
		return false
	}
	if len(f.Concepts) > 0 && !overlaps(f.Concepts, e.Concepts) {
		return false
	}
	return true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func overlaps(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
