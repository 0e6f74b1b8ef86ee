// Package tutor manages learner tutoring sessions: their lifecycle, the
// per-session interaction log, and the retrieval-grounded response pipeline.
package tutor

import (
	"time"

	"github.com/google/uuid"
)

// Personality shapes the tone of generated responses.
type Personality string

const (
	PersonalityEncouraging  Personality = "encouraging"
	PersonalityChallenging  Personality = "challenging"
	PersonalityPatient      Personality = "patient"
	PersonalityEnthusiastic Personality = "enthusiastic"
)

// Valid reports whether p is a known personality.
func (p Personality) Valid() bool {
	switch p {
	case PersonalityEncouraging, PersonalityChallenging, PersonalityPatient, PersonalityEnthusiastic:
		return true
	}
	return false
}

// SessionType describes what the learner came to do.
type SessionType string

const (
	TypeStudy      SessionType = "study"
	TypePractice   SessionType = "practice"
	TypeAssessment SessionType = "assessment"
	TypeHelp       SessionType = "help"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case TypeStudy, TypePractice, TypeAssessment, TypeHelp:
		return true
	}
	return false
}

// Status is a session's lifecycle state. Active sessions accept queries;
// completed and abandoned sessions are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether the status accepts no further interactions.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusAbandoned }

// Feedback is a learner's rating of one response.
type Feedback string

const (
	FeedbackHelpful    Feedback = "helpful"
	FeedbackNotHelpful Feedback = "not_helpful"
	FeedbackConfusing  Feedback = "confusing"
)

// Valid reports whether f is a known feedback value.
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackHelpful, FeedbackNotHelpful, FeedbackConfusing:
		return true
	}
	return false
}

// voteDelta computes the change to a session's vote counters when fb
// replaces prev on an interaction. prev is nil for a first rating.
func voteDelta(prev *Feedback, fb Feedback) (helpful, notHelpful int) {
	if prev != nil {
		if *prev == FeedbackHelpful {
			helpful--
		} else {
			notHelpful--
		}
	}
	if fb == FeedbackHelpful {
		helpful++
	} else {
		notHelpful++
	}
	return helpful, notHelpful
}

// Scope narrows what content a session draws on. Zero-valued fields do not
// constrain.
type Scope struct {
	KnowledgeBaseID *uuid.UUID
	Subject         string
	Grade           string
	CourseID        *uuid.UUID
	LessonID        *uuid.UUID
}

// Session is one learner's tutoring conversation.
type Session struct {
	ID          uuid.UUID
	LearnerID   uuid.UUID
	Personality Personality
	Type        SessionType
	Status      Status
	Scope       Scope

	// Running counters, maintained by the store as turns are recorded and
	// rated. Confusing votes count as not helpful.
	QuestionCount   int
	RetrievalCount  int
	HelpfulCount    int
	NotHelpfulCount int

	StartedAt      time.Time
	LastActivityAt time.Time
	EndedAt        *time.Time
}

// RetrievedChunk is one context citation: the chunk that backed the response
// and how strongly it matched the query. JSON tags match the jsonb column
// layout.
type RetrievedChunk struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	Similarity float64   `json:"similarity"`
}

// Interaction is one query/response turn. Sequence is assigned by the store
// and is strictly increasing within a session with no gaps.
type Interaction struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Sequence  int

	Query          string
	RewrittenQuery string
	Response       string

	// RetrievedChunks preserves retrieval order, strongest match first.
	RetrievedChunks []RetrievedChunk

	// ContextScore is the best retrieval similarity backing the response,
	// 0 when nothing was retrieved.
	ContextScore float64

	// Latency is how long the turn took from query receipt to recorded
	// response.
	Latency time.Duration

	Feedback  *Feedback
	CreatedAt time.Time
}
