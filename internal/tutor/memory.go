package tutor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and memory-mode deployments.
type MemoryStore struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]*Session
	interactions map[uuid.UUID][]Interaction // session id -> turns, ascending
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[uuid.UUID]*Session),
		interactions: make(map[uuid.UUID][]Interaction),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

func (m *MemoryStore) ListSessionsByLearner(_ context.Context, learnerID uuid.UUID) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions []Session
	for _, s := range m.sessions {
		if s.LearnerID == learnerID {
			sessions = append(sessions, *s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status Status, endedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Status = status
	s.EndedAt = endedAt
	return nil
}

func (m *MemoryStore) ListIdleActive(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, s := range m.sessions {
		if s.Status == StatusActive && s.LastActivityAt.Before(cutoff) {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) RecordInteraction(_ context.Context, in Interaction) (Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[in.SessionID]
	if !ok {
		return Interaction{}, ErrSessionNotFound
	}
	if s.Status != StatusActive {
		return Interaction{}, ErrSessionNotActive
	}

	in.Sequence = len(m.interactions[in.SessionID]) + 1
	if in.ID == (uuid.UUID{}) {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	m.interactions[in.SessionID] = append(m.interactions[in.SessionID], in)

	s.QuestionCount++
	if len(in.RetrievedChunks) > 0 {
		s.RetrievalCount++
	}
	s.LastActivityAt = in.CreatedAt
	return in, nil
}

func (m *MemoryStore) AttachFeedback(_ context.Context, sessionID, interactionID uuid.UUID, fb Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	turns := m.interactions[sessionID]
	for i := range turns {
		if turns[i].ID == interactionID {
			helpful, notHelpful := voteDelta(turns[i].Feedback, fb)
			s.HelpfulCount += helpful
			s.NotHelpfulCount += notHelpful
			turns[i].Feedback = &fb
			return nil
		}
	}
	return ErrInteractionNotFound
}

func (m *MemoryStore) ListInteractions(_ context.Context, sessionID uuid.UUID, limit int) ([]Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}
	turns := m.interactions[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Interaction, len(turns))
	copy(out, turns)
	return out, nil
}
