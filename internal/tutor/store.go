package tutor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors checked with errors.Is.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session not active")
	ErrInteractionNotFound = errors.New("interaction not found")
)

// Store persists sessions and their interaction logs.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	ListSessionsByLearner(ctx context.Context, learnerID uuid.UUID) ([]Session, error)

	// UpdateStatus moves the session to status, stamping endedAt when the
	// status is terminal.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, endedAt *time.Time) error

	// ListIdleActive returns ids of active sessions with no activity since
	// the cutoff.
	ListIdleActive(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	// RecordInteraction appends a turn to an active session, atomically
	// assigning the next sequence number and bumping the session's question
	// count and activity time. Fails with ErrSessionNotActive on terminal
	// sessions.
	RecordInteraction(ctx context.Context, in Interaction) (Interaction, error)

	// AttachFeedback sets the learner's rating on a recorded interaction.
	AttachFeedback(ctx context.Context, sessionID, interactionID uuid.UUID, fb Feedback) error

	// ListInteractions returns a session's turns in sequence order. A
	// positive limit returns only the most recent turns, still ascending.
	ListInteractions(ctx context.Context, sessionID uuid.UUID, limit int) ([]Interaction, error)
}
