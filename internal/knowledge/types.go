// Package knowledge manages curated educational content: knowledge bases,
// their chunked documents, and the ingestion pipeline that embeds and indexes
// chunks for retrieval.
package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Difficulty levels a knowledge base or chunk targets.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

// Valid reports whether d is a known difficulty level.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert:
		return true
	}
	return false
}

// KnowledgeBase is a curated collection of educational content for one
// subject and grade level. It owns its chunks: ChunkIDs is the authoritative
// membership list, and deleting a knowledge base deletes its chunks and
// their index entries.
type KnowledgeBase struct {
	ID          uuid.UUID
	Name        string
	Description string
	Subject     string
	Grade       string
	Difficulty  Difficulty

	// ContentType is a free-form tag for the kind of material, e.g.
	// "lesson" or "reference". Tags are free-form labels for discovery.
	ContentType string
	Tags        []string

	// OwnerID is the creating educator. Private bases are visible only to
	// their owner; public ones to everyone.
	OwnerID  uuid.UUID
	IsPublic bool

	// EmbeddingModel is the model whose vectors index this base's chunks.
	// Changing it triggers re-embedding of every chunk.
	EmbeddingModel string

	ChunkIDs  []uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one retrievable segment of a source document. Offsets are rune
// positions into the original document, so multi-byte scripts slice
// correctly.
type Chunk struct {
	ID              uuid.UUID
	KnowledgeBaseID uuid.UUID
	Content         string

	// Position is the chunk's ordinal within its source document.
	Position    int
	StartOffset int
	EndOffset   int

	Concepts           []string
	LearningObjectives []string
	Prerequisites      []string

	// Optional curriculum references. Weak links: the referenced course or
	// lesson may not exist locally.
	CourseID *uuid.UUID
	LessonID *uuid.UUID

	// Validated is set once at least one content validation has been
	// recorded for the chunk.
	Validated bool

	CreatedAt time.Time
}

// ContentMetadata travels with a document through ingestion and is stamped
// onto every chunk produced from it.
type ContentMetadata struct {
	Concepts           []string
	LearningObjectives []string
	Prerequisites      []string
	CourseID           *uuid.UUID
	LessonID           *uuid.UUID
}
