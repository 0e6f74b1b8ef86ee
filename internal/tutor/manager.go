package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/knowledge"
)

const (
	// DefaultIdleTimeout is how long an active session may sit without
	// interactions before the sweeper abandons it.
	DefaultIdleTimeout = 30 * time.Minute

	sweepInterval = time.Minute
)

// BaseLookup resolves knowledge bases referenced by a session scope.
// *knowledge.Service satisfies it.
type BaseLookup interface {
	GetKnowledgeBase(ctx context.Context, id uuid.UUID) (knowledge.KnowledgeBase, error)
}

// Manager owns session lifecycle: starting, ending, feedback, and the
// background sweep that abandons idle sessions.
type Manager struct {
	store       Store
	bases       BaseLookup
	idleTimeout time.Duration
	logger      *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewManager creates a Manager. idleTimeout <= 0 uses the default. Call
// StartSweeper to begin idle cleanup and Close to stop it.
func NewManager(store Store, bases BaseLookup, idleTimeout time.Duration, logger *slog.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       store,
		bases:       bases,
		idleTimeout: idleTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// StartParams describes a new session.
type StartParams struct {
	LearnerID   uuid.UUID
	Personality Personality
	Type        SessionType
	Scope       Scope
}

// Start validates params and creates an active session. A scoped knowledge
// base must exist; other scope fields are free-form narrowing.
func (m *Manager) Start(ctx context.Context, params StartParams) (Session, error) {
	if params.LearnerID == (uuid.UUID{}) {
		return Session{}, apperr.New(apperr.InvalidInput, "learner id is required")
	}
	if !params.Personality.Valid() {
		return Session{}, apperr.New(apperr.InvalidInput, "unknown personality %q", params.Personality)
	}
	if !params.Type.Valid() {
		return Session{}, apperr.New(apperr.InvalidInput, "unknown session type %q", params.Type)
	}

	if params.Scope.KnowledgeBaseID != nil {
		if _, err := m.bases.GetKnowledgeBase(ctx, *params.Scope.KnowledgeBaseID); err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				return Session{}, err
			}
			return Session{}, fmt.Errorf("check scope: %w", err)
		}
	}

	now := time.Now()
	s := Session{
		ID:             uuid.New(),
		LearnerID:      params.LearnerID,
		Personality:    params.Personality,
		Type:           params.Type,
		Status:         StatusActive,
		Scope:          params.Scope,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	m.logger.Info("session started",
		"session", s.ID, "learner", s.LearnerID,
		"personality", s.Personality, "type", s.Type)
	return s, nil
}

// Get returns the session or a NotFound error.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	s, err := m.store.GetSession(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return Session{}, apperr.Wrap(apperr.NotFound, err, "session %s", id)
	}
	return s, err
}

// End moves the session to completed. Ending an already-terminal session is
// a no-op returning the session as it is, so clients can retry safely.
func (m *Manager) End(ctx context.Context, id uuid.UUID) (Session, error) {
	return m.finish(ctx, id, StatusCompleted)
}

// Abandon moves the session to abandoned. Used by the idle sweeper; exposed
// for explicit abandonment too. Idempotent like End.
func (m *Manager) Abandon(ctx context.Context, id uuid.UUID) (Session, error) {
	return m.finish(ctx, id, StatusAbandoned)
}

func (m *Manager) finish(ctx context.Context, id uuid.UUID, status Status) (Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Status.Terminal() {
		return s, nil
	}

	now := time.Now()
	if err := m.store.UpdateStatus(ctx, id, status, &now); err != nil {
		return Session{}, fmt.Errorf("update status: %w", err)
	}
	s.Status = status
	s.EndedAt = &now

	m.logger.Info("session finished", "session", id, "status", status, "questions", s.QuestionCount)
	return s, nil
}

// Feedback records the learner's rating of one response.
func (m *Manager) Feedback(ctx context.Context, sessionID, interactionID uuid.UUID, fb Feedback) error {
	if !fb.Valid() {
		return apperr.New(apperr.InvalidInput, "unknown feedback %q", fb)
	}
	err := m.store.AttachFeedback(ctx, sessionID, interactionID, fb)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return apperr.Wrap(apperr.NotFound, err, "session %s", sessionID)
	case errors.Is(err, ErrInteractionNotFound):
		return apperr.Wrap(apperr.NotFound, err, "interaction %s", interactionID)
	}
	return err
}

// History returns the session's interaction log in order.
func (m *Manager) History(ctx context.Context, sessionID uuid.UUID) ([]Interaction, error) {
	turns, err := m.store.ListInteractions(ctx, sessionID, 0)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apperr.Wrap(apperr.NotFound, err, "session %s", sessionID)
	}
	return turns, err
}

// StartSweeper launches the background goroutine that abandons sessions idle
// past the timeout. Stop it with Close.
func (m *Manager) StartSweeper() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-m.idleTimeout)
	ids, err := m.store.ListIdleActive(ctx, cutoff)
	if err != nil {
		m.logger.Warn("idle sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		if _, err := m.Abandon(ctx, id); err != nil {
			m.logger.Warn("abandoning idle session failed", "session", id, "error", err)
			continue
		}
		m.logger.Info("idle session abandoned", "session", id)
	}
}

// Close stops the sweeper and waits for it to exit.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()
}
