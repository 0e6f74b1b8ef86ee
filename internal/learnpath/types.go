// Package learnpath plans ordered learning paths through chunk-level
// learning objectives and recommends review content for a learner's weak
// spots.
package learnpath

import (
	"time"

	"github.com/google/uuid"
)

// LearnerProfile is what the planner knows about a learner.
type LearnerProfile struct {
	LearnerID uuid.UUID
	Subject   string
	Grade     string

	// KnownConcepts the learner has already mastered. Prerequisites on
	// these are considered satisfied.
	KnownConcepts []string

	// WeakConcepts the learner struggles with, used for recommendations.
	WeakConcepts []string
}

// Step is one unit of a learning path: an objective and the chunks that
// teach it.
type Step struct {
	Order            int
	Objective        string
	ChunkIDs         []uuid.UUID
	Concepts         []string
	EstimatedMinutes int
}

// LearningPath is an ordered plan toward target objectives. Every step's
// prerequisites are satisfied by earlier steps, the learner's known
// concepts, or the assumed background.
type LearningPath struct {
	ID               uuid.UUID
	LearnerID        uuid.UUID
	KnowledgeBaseID  uuid.UUID
	TargetObjectives []string
	Steps            []Step
	TotalMinutes     int

	// AssumedBackground lists concepts the path relies on but does not
	// teach, either because no content covers them or because time
	// trimming removed their steps.
	AssumedBackground []string

	CreatedAt time.Time
}

// Recommendation is one suggested chunk for review.
type Recommendation struct {
	ChunkID    uuid.UUID
	Score      float64
	Similarity float64
	Recency    float64
	Reason     string
}
